// Exports a downloaded package as a zip archive, so content can be moved
// between installs by hand (the counterpart of the sideload importer).

package export

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/satchel-app/satchel-go/internal/models"
)

// archiveMeta is the manifest slice embedded alongside the package.
type archiveMeta struct {
	ContentID  string `json:"contentId"`
	Version    int64  `json:"version"`
	Title      string `json:"title"`
	Subject    string `json:"subject"`
	ExportedBy string `json:"exportedBy"`
}

// WriteArchive writes a zip archive containing the package payload and a
// small metadata file to w.
func WriteArchive(w io.Writer, pkg *models.ContentPackage, appVersion string) error {
	zipWriter := zip.NewWriter(w)

	payload, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize package %s: %w", pkg.ContentID, err)
	}
	f, err := zipWriter.Create("package.json")
	if err != nil {
		return fmt.Errorf("failed to create file in zip: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("failed to write file to zip: %w", err)
	}

	meta, err := json.MarshalIndent(archiveMeta{
		ContentID:  pkg.ContentID,
		Version:    pkg.Version,
		Title:      pkg.Content.Title,
		Subject:    pkg.Subject(),
		ExportedBy: appVersion,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}
	f, err = zipWriter.Create("meta.json")
	if err != nil {
		return fmt.Errorf("failed to create file in zip: %w", err)
	}
	if _, err := f.Write(meta); err != nil {
		return fmt.Errorf("failed to write file to zip: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to finalize zip archive: %w", err)
	}
	return nil
}

// ArchiveFilename derives a safe download filename for the package.
func ArchiveFilename(pkg *models.ContentPackage) string {
	title := pkg.Content.Title
	if title == "" {
		title = pkg.ContentID
	}
	return fmt.Sprintf("%s.zip", SanitizeFilename(title))
}

// SanitizeFilename strips characters that are unsafe in filenames.
func SanitizeFilename(filename string) string {
	re := regexp.MustCompile(`[\x00\\/:*?"<>|]`)
	safeName := re.ReplaceAllString(filename, "-")

	for strings.HasPrefix(safeName, ".") || strings.HasPrefix(safeName, "-") {
		safeName = safeName[1:]
	}
	if safeName == "" {
		safeName = "untitled"
	}
	return safeName
}
