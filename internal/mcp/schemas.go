package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var (
	readOnly = mcp.ToolAnnotation{
		ReadOnlyHint:    mcp.ToBoolPtr(true),
		DestructiveHint: mcp.ToBoolPtr(false),
		IdempotentHint:  mcp.ToBoolPtr(true),
		OpenWorldHint:   mcp.ToBoolPtr(false),
	}
	writesIndex = mcp.ToolAnnotation{
		ReadOnlyHint:    mcp.ToBoolPtr(false),
		DestructiveHint: mcp.ToBoolPtr(false),
		IdempotentHint:  mcp.ToBoolPtr(true),
		OpenWorldHint:   mcp.ToBoolPtr(false),
	}
	destructive = mcp.ToolAnnotation{
		ReadOnlyHint:    mcp.ToBoolPtr(false),
		DestructiveHint: mcp.ToBoolPtr(true),
		IdempotentHint:  mcp.ToBoolPtr(true),
		OpenWorldHint:   mcp.ToBoolPtr(false),
	}
)

func limitOption() mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum number of similar pairs to merge into groups"),
		mcp.Min(1),
		mcp.Max(maxLimit),
	)
}

func previewOption() mcp.ToolOption {
	return mcp.WithNumber("preview",
		mcp.Description("Characters of chunk content to include per group member (0 disables)"),
		mcp.DefaultNumber(defaultPreview),
		mcp.Min(0),
	)
}

func analyzeWorkspaceTool() mcp.Tool {
	return mcp.NewTool("analyze_workspace",
		mcp.WithDescription("Index a workspace incrementally, then report groups of near-duplicate code. Unchanged files are skipped."),
		mcp.WithToolAnnotation(writesIndex),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute path to the workspace root"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Reanalyse every file regardless of modification time"),
			mcp.DefaultBool(false),
		),
		mcp.WithBoolean("prune",
			mcp.Description("Drop index entries for files no longer on disk"),
			mcp.DefaultBool(true),
		),
		limitOption(),
		previewOption(),
	)
}

func findDuplicatesTool() mcp.Tool {
	return mcp.NewTool("find_duplicates",
		mcp.WithDescription("Report groups of near-duplicate code from an existing index without reanalysing files."),
		mcp.WithToolAnnotation(readOnly),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute path to an analysed workspace"),
		),
		limitOption(),
		mcp.WithNumber("min_similarity",
			mcp.Description("Pairs must be strictly more similar than this, between 0 and 1 exclusive"),
			mcp.Min(0),
			mcp.Max(1),
		),
		previewOption(),
	)
}

func getStatusTool() mcp.Tool {
	return mcp.NewTool("get_status",
		mcp.WithDescription("Index statistics for one workspace, or for the whole index when path is omitted."),
		mcp.WithToolAnnotation(readOnly),
		mcp.WithString("path",
			mcp.Description("Absolute path to a workspace"),
		),
	)
}

func deleteIndexTool() mcp.Tool {
	return mcp.NewTool("delete_index",
		mcp.WithDescription("Delete every workspace from the index. Requires confirm: true."),
		mcp.WithToolAnnotation(destructive),
		mcp.WithBoolean("confirm",
			mcp.Required(),
			mcp.Description("Must be true"),
		),
	)
}
