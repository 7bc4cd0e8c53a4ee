package bulksynchttp

import (
	"log/slog"
	"mime"
)

// workbookTypes maps the accepted upload extensions to their media types.
var workbookTypes = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xlsm": "application/vnd.ms-excel.sheet.macroEnabled.12",
	".xltx": "application/vnd.openxmlformats-officedocument.spreadsheetml.template",
	".xltm": "application/vnd.ms-excel.template.macroEnabled.12",
}

func init() {
	for ext, typ := range workbookTypes {
		if mime.TypeByExtension(ext) != "" {
			continue
		}
		if err := mime.AddExtensionType(ext, typ); err != nil {
			slog.Default().Warn("register workbook mime type", slog.String("ext", ext), slog.Any("error", err))
		}
	}
}

func contentType(ext string) string {
	if typ := mime.TypeByExtension(ext); typ != "" {
		return typ
	}
	return "application/octet-stream"
}
