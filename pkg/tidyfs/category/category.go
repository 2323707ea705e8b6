// Package category assigns files to content categories.
//
// Classify works from the file name alone and is cheap enough to run on
// every record during a scan. Detect sniffs file content and exists to
// rescue extensionless files when a caller can afford the read.
package category

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

var extCategories = map[string]types.Category{
	".py":   types.CategoryCode,
	".js":   types.CategoryCode,
	".ts":   types.CategoryCode,
	".java": types.CategoryCode,
	".cpp":  types.CategoryCode,
	".c":    types.CategoryCode,
	".h":    types.CategoryCode,
	".go":   types.CategoryCode,
	".rs":   types.CategoryCode,
	".rb":   types.CategoryCode,
	".php":  types.CategoryCode,

	".pdf":  types.CategoryDocument,
	".doc":  types.CategoryDocument,
	".docx": types.CategoryDocument,
	".txt":  types.CategoryDocument,
	".md":   types.CategoryDocument,
	".odt":  types.CategoryDocument,
	".rtf":  types.CategoryDocument,

	".jpg":  types.CategoryImage,
	".jpeg": types.CategoryImage,
	".png":  types.CategoryImage,
	".gif":  types.CategoryImage,
	".bmp":  types.CategoryImage,
	".webp": types.CategoryImage,
	".svg":  types.CategoryImage,
	".tiff": types.CategoryImage,
	".tif":  types.CategoryImage,
	".heic": types.CategoryImage,
	".ico":  types.CategoryImage,

	".mp4":  types.CategoryVideo,
	".mov":  types.CategoryVideo,
	".avi":  types.CategoryVideo,
	".mkv":  types.CategoryVideo,
	".webm": types.CategoryVideo,
	".wmv":  types.CategoryVideo,
	".flv":  types.CategoryVideo,
	".m4v":  types.CategoryVideo,

	".mp3":  types.CategoryAudio,
	".wav":  types.CategoryAudio,
	".flac": types.CategoryAudio,
	".aac":  types.CategoryAudio,
	".ogg":  types.CategoryAudio,
	".m4a":  types.CategoryAudio,
	".wma":  types.CategoryAudio,
	".opus": types.CategoryAudio,

	".zip": types.CategoryArchive,
	".tar": types.CategoryArchive,
	".gz":  types.CategoryArchive,
	".bz2": types.CategoryArchive,
	".7z":  types.CategoryArchive,
	".rar": types.CategoryArchive,
	".xz":  types.CategoryArchive,
	".zst": types.CategoryArchive,

	".json":   types.CategoryData,
	".xml":    types.CategoryData,
	".yaml":   types.CategoryData,
	".yml":    types.CategoryData,
	".csv":    types.CategoryData,
	".sql":    types.CategoryData,
	".db":     types.CategoryData,
	".sqlite": types.CategoryData,

	".o":     types.CategoryBuildArtifact,
	".pyc":   types.CategoryBuildArtifact,
	".class": types.CategoryBuildArtifact,
	".obj":   types.CategoryBuildArtifact,
	".exe":   types.CategoryBuildArtifact,
	".dll":   types.CategoryBuildArtifact,
	".so":    types.CategoryBuildArtifact,

	".tmp":  types.CategoryTemporary,
	".temp": types.CategoryTemporary,
	".bak":  types.CategoryTemporary,
	".swp":  types.CategoryTemporary,
	".swo":  types.CategoryTemporary,
}

// Classify maps a file name to a category by its extension. Editor
// backup names with a trailing tilde count as temporary regardless of
// what precedes the tilde.
func Classify(name string) types.Category {
	ext := strings.ToLower(filepath.Ext(name))
	if c, ok := extCategories[ext]; ok {
		return c
	}
	if strings.HasSuffix(name, "~") {
		return types.CategoryTemporary
	}
	return types.CategoryOther
}

// Detect sniffs file content and maps the detected MIME type to a
// category. It opens the file, so callers on hot paths should prefer
// Classify and fall back here only when the name is inconclusive.
func Detect(path string) (types.Category, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return types.CategoryOther, err
	}
	return fromMIME(mtype), nil
}

// Resolve classifies by name and falls back to content sniffing when
// the name alone says nothing. Sniffing failures degrade to other
// rather than propagating.
func Resolve(path string) types.Category {
	if c := Classify(filepath.Base(path)); c != types.CategoryOther {
		return c
	}
	if c, err := Detect(path); err == nil {
		return c
	}
	return types.CategoryOther
}

func fromMIME(mtype *mimetype.MIME) types.Category {
	s := mtype.String()
	switch {
	case strings.HasPrefix(s, "image/"):
		return types.CategoryImage
	case strings.HasPrefix(s, "video/"):
		return types.CategoryVideo
	case strings.HasPrefix(s, "audio/"):
		return types.CategoryAudio
	case mtype.Is("application/pdf"):
		return types.CategoryDocument
	case mtype.Is("application/zip"),
		mtype.Is("application/x-tar"),
		mtype.Is("application/gzip"),
		mtype.Is("application/x-bzip2"),
		mtype.Is("application/x-7z-compressed"),
		mtype.Is("application/x-rar-compressed"),
		mtype.Is("application/x-xz"),
		mtype.Is("application/zstd"):
		return types.CategoryArchive
	case mtype.Is("application/json"),
		mtype.Is("text/xml"),
		mtype.Is("text/csv"),
		mtype.Is("application/x-sqlite3"):
		return types.CategoryData
	case mtype.Is("application/x-executable"),
		mtype.Is("application/x-sharedlib"),
		mtype.Is("application/x-mach-binary"),
		mtype.Is("application/vnd.microsoft.portable-executable"):
		return types.CategoryBuildArtifact
	case mtype.Is("text/plain"), mtype.Parent() != nil && mtype.Parent().Is("text/plain"):
		return types.CategoryDocument
	default:
		return types.CategoryOther
	}
}
