package message

import (
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
)

// Form field names used by the create-message endpoint.
const (
	FieldMessage    = "message"
	FieldData       = "data"
	FieldVersion    = "version"
	FieldAttachment = "attachment"
	FieldPreview    = "preview"
)

// named is satisfied by *os.File.
type named interface {
	Name() string
}

// WriteMultipart writes the message as multipart form parts. The handles are
// read to EOF but not closed. The caller closes w.
func (m *Message) WriteMultipart(w *multipart.Writer) error {
	if err := w.WriteField(FieldMessage, m.content); err != nil {
		return fmt.Errorf("write %s field: %w", FieldMessage, err)
	}
	if m.data != "" {
		if err := w.WriteField(FieldData, m.data); err != nil {
			return fmt.Errorf("write %s field: %w", FieldData, err)
		}
	}
	if m.version != "" {
		if err := w.WriteField(FieldVersion, m.version); err != nil {
			return fmt.Errorf("write %s field: %w", FieldVersion, err)
		}
	}
	for i, a := range m.attachments {
		if err := writeFile(w, FieldAttachment, i, a); err != nil {
			return err
		}
	}
	for i, p := range m.previews {
		if err := writeFile(w, FieldPreview, i, p); err != nil {
			return err
		}
	}
	return nil
}

// FileName returns the name a handle is uploaded under.
func FileName(field string, index int, r io.Reader) string {
	if n, ok := r.(named); ok && n.Name() != "" {
		return filepath.Base(n.Name())
	}
	return fmt.Sprintf("%s-%d", field, index+1)
}

func writeFile(w *multipart.Writer, field string, index int, r io.Reader) error {
	if r == nil {
		return fmt.Errorf("%s %d: nil handle", field, index+1)
	}
	part, err := w.CreateFormFile(field, FileName(field, index, r))
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("copy %s %d: %w", field, index+1, err)
	}
	return nil
}
