// Package mcp implements the Model Context Protocol (MCP) server for dupscan.
//
// The server exposes four tools to AI coding assistants:
//   - analyze_workspace: incrementally index a workspace, then report duplicate groups
//   - find_duplicates: report duplicate groups from the existing index
//   - get_status: index statistics for one workspace or the whole index
//   - delete_index: drop every workspace from the index (requires confirm: true)
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries protocol messages only; logs go to stderr.
//
// # Tool: analyze_workspace
//
//	Request:
//	{
//	  "path": "/abs/path/to/workspace",
//	  "force": false,
//	  "prune": true,
//	  "limit": 50
//	}
//
//	Response:
//	{
//	  "run_id": "4f0c...",
//	  "workspace": "/abs/path/to/workspace",
//	  "files_analyzed": 12,
//	  "files_skipped": 140,
//	  "files_failed": 0,
//	  "files_removed": 1,
//	  "chunks_created": 904,
//	  "duration_ms": 2310,
//	  "duplicates": {
//	    "group_count": 1,
//	    "pair_count": 1,
//	    "candidates": 3,
//	    "truncated": false,
//	    "groups": [
//	      {
//	        "similarity": 0.998,
//	        "files": 2,
//	        "chunks": [
//	          {"file": "a.go", "start_line": 4, "end_line": 8, "preview": "func validate(..."},
//	          {"file": "b.go", "start_line": 4, "end_line": 8, "preview": "func validate(..."}
//	        ]
//	      }
//	    ]
//	  }
//	}
//
// Per-file failures are counted in files_failed and the first few messages
// are listed under errors; they never fail the call.
//
// # Tool: find_duplicates
//
// Takes path, limit, min_similarity and preview. It is rejected while an
// analysis holds the index lock, and with ErrorCodeNotIndexed for a
// workspace that has no files in the index. A min_similarity below
// 1 - coarse distance widens the coarse cap so the fine threshold stays the
// binding one.
//
// # Error Codes
//
//	-32602  Invalid params (missing or relative path, bad limit)
//	-32603  Internal error
//	-32001  Workspace path does not exist
//	-32002  Analysis in progress
//	-32003  Workspace not indexed
//	-32004  Confirmation required
//	-32005  Store unavailable
//
// Settings come from internal/config; a workspace's .dupscan.yaml is applied
// on every call that names that workspace.
package mcp
