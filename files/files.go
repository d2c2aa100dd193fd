// Package files records document and folder metadata produced by job
// handlers. Rows here are what the rest of the product lists and opens; the
// bytes themselves live in blob storage.
package files

import (
	"database/sql"
	"errors"
	"time"

	"github.com/docmill/docmill/models/db"
	"github.com/google/uuid"
)

// ErrNotFound indicates that the file was not found.
var ErrNotFound = errors.New("File not found")

// A File is one stored document. The OCR fields are nil until an ocr job has
// processed the file.
type File struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	FolderID       *string
	Name           string
	StorageKey     string
	MimeType       string
	Size           int64
	OCRText        *string
	OCRSummary     *string
	OCRProcessedAt *time.Time
	CreatedAt      time.Time
}

// A Folder groups files for one user.
type Folder struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ParentID  *string
	Name      string
	CreatedAt time.Time
}

// An OCRUpdate carries recognized text and/or a summary to attach to a file.
// Nil fields are left untouched.
type OCRUpdate struct {
	Text        *string
	Summary     *string
	ProcessedAt time.Time
}

var insertFileStmt *sql.Stmt
var insertFolderStmt *sql.Stmt
var updateOCRStmt *sql.Stmt
var getFileStmt *sql.Stmt

// Setup prepares all statements.
func Setup() (err error) {
	if !db.Connected() {
		return errors.New("No DB connection was established, can't query")
	}

	insertFileStmt, err = db.Conn.Prepare(`-- files.InsertFile
INSERT INTO files (id, user_id, folder_id, name, storage_key, content_type, size_bytes)
VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return err
	}

	insertFolderStmt, err = db.Conn.Prepare(`-- files.InsertFolder
INSERT INTO folders (id, user_id, parent_id, name)
VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return err
	}

	updateOCRStmt, err = db.Conn.Prepare(`-- files.UpdateFileOCRFields
UPDATE files SET
	ocr_text = COALESCE($2, ocr_text),
	ocr_summary = COALESCE($3, ocr_summary),
	ocr_processed_at = $4
WHERE id = $1`)
	if err != nil {
		return err
	}

	getFileStmt, err = db.Conn.Prepare(`-- files.Get
SELECT id, user_id, folder_id, name, storage_key, content_type, size_bytes,
	ocr_text, ocr_summary, ocr_processed_at, created_at
FROM files
WHERE id = $1`)
	return err
}

// Get returns the file with the given id, or ErrNotFound.
func Get(id uuid.UUID) (*File, error) {
	f := new(File)
	err := getFileStmt.QueryRow(id).Scan(&f.ID, &f.UserID, &f.FolderID, &f.Name,
		&f.StorageKey, &f.MimeType, &f.Size, &f.OCRText, &f.OCRSummary,
		&f.OCRProcessedAt, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

// A Store writes file metadata through the package's prepared statements.
// The zero value is ready to use once Setup has run.
type Store struct{}

// InsertFile records a new file row.
func (Store) InsertFile(f File) error {
	_, err := insertFileStmt.Exec(f.ID, f.UserID, f.FolderID, f.Name, f.StorageKey, f.MimeType, f.Size)
	return err
}

// InsertFolder records a new folder row.
func (Store) InsertFolder(f Folder) error {
	_, err := insertFolderStmt.Exec(f.ID, f.UserID, f.ParentID, f.Name)
	return err
}

// UpdateFileOCRFields attaches OCR output to an existing file. Fields that
// are nil in up keep their current value.
func (Store) UpdateFileOCRFields(fileID uuid.UUID, up OCRUpdate) error {
	_, err := updateOCRStmt.Exec(fileID, up.Text, up.Summary, up.ProcessedAt)
	return err
}
