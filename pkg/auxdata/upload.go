package auxdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oceanlog/oceanlog/pkg/images"
	"github.com/oceanlog/oceanlog/pkg/models"
)

// FilePondSource is the data source name the vessel UI uses for aux-data
// records carrying staged file uploads.
const FilePondSource = "SealogVesselUI"

// filenameItem marks a data item whose value names a staged upload as
// "<tempID>|<newName>".
const filenameItem = "filename"

// Uploader moves FilePond-staged files into the image store. Each staged
// upload lives in its own directory under stagingDir, named by the FilePond
// temp id.
type Uploader struct {
	stagingDir string
	images     images.Store
}

func NewUploader(stagingDir string, store images.Store) *Uploader {
	return &Uploader{stagingDir: stagingDir, images: store}
}

// Ingest resolves every staged-file reference in the record's data array:
// the staged file is copied into the image store under the requested name
// (keeping the staged file's extension) and the item's value is rewritten
// to the final name. Any failure aborts the whole record; nothing is
// partially recorded.
func (u *Uploader) Ingest(ctx context.Context, ad *models.EventAuxData) error {
	for i := range ad.DataArray {
		item := &ad.DataArray[i]
		if item.Name != filenameItem || !strings.Contains(item.Value, "|") {
			continue
		}
		tempID, newName, _ := strings.Cut(item.Value, "|")
		finalName, err := u.ingestOne(ctx, tempID, newName)
		if err != nil {
			return fmt.Errorf("ingest staged file %s: %w", tempID, err)
		}
		item.Value = finalName
	}
	return nil
}

func (u *Uploader) ingestOne(ctx context.Context, tempID, newName string) (string, error) {
	stageDir := filepath.Join(u.stagingDir, filepath.Base(tempID))
	entries, err := os.ReadDir(stageDir)
	if err != nil {
		return "", fmt.Errorf("read staging dir: %w", err)
	}

	var staged string
	for _, e := range entries {
		if !e.IsDir() {
			staged = e.Name()
			break
		}
	}
	if staged == "" {
		return "", fmt.Errorf("no staged file under %s", stageDir)
	}

	// The requested name's extension is replaced with the staged file's,
	// so the stored name reflects the real content type.
	base := strings.TrimSuffix(filepath.Base(newName), filepath.Ext(newName))
	finalName := base + filepath.Ext(staged)

	f, err := os.Open(filepath.Join(stageDir, staged))
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	if err := u.images.Put(ctx, finalName, f); err != nil {
		return "", err
	}
	if err := os.RemoveAll(stageDir); err != nil {
		return "", fmt.Errorf("clear staging dir: %w", err)
	}
	return finalName, nil
}
