// Package message builds the payload sent through the message service:
// MessageML content, entity data, format version and file attachments with
// optional previews.
package message

import (
	"fmt"
	"io"
	"strings"
)

// MessageML tags that delimit message content.
const (
	StartTag = "<messageML>"
	EndTag   = "</messageML>"
)

// Message is an outgoing chat message. It is validated when built and is
// read-only afterwards.
//
// Attachment and preview handles stay owned by the caller, who must close
// them once the message has been sent. A Message never closes them.
type Message struct {
	content     string
	data        string
	version     string
	attachments []io.Reader
	previews    []io.Reader
}

// Attachment is either a Single file or a file WithPreview, passed by value
// or by pointer.
type Attachment interface {
	attachment()
}

// Single is an attachment without a preview.
type Single struct {
	File io.Reader
}

// WithPreview pairs an attachment with its preview image. A nil Preview
// contributes nothing to the preview list.
type WithPreview struct {
	File    io.Reader
	Preview io.Reader
}

func (Single) attachment()      {}
func (WithPreview) attachment() {}

// Option customizes a Message under construction.
type Option func(*options)

type options struct {
	data        string
	version     string
	attachments []Attachment
}

// WithData sets the JSON entity data referenced by the content.
func WithData(data string) Option {
	return func(o *options) { o.data = data }
}

// WithVersion sets the message format version ("major.minor"). Empty means
// the latest version supported by the platform.
func WithVersion(version string) Option {
	return func(o *options) { o.version = version }
}

// WithAttachments appends attachments in the given order.
func WithAttachments(attachments ...Attachment) Option {
	return func(o *options) { o.attachments = append(o.attachments, attachments...) }
}

// New builds a Message. Content without either MessageML tag is wrapped in
// <messageML>...</messageML>; content that already starts with the opening
// tag or already ends with the closing tag is kept as is. Empty content is
// wrapped too.
//
// It returns a *CreationError when some, but not all, attachments carry a
// preview, or when an attachment is nil.
func New(content string, opts ...Option) (*Message, error) {
	return Build(&content, opts...)
}

// Build is New for content that may be absent. A nil content is rejected
// with a *CreationError.
func Build(content *string, opts ...Option) (*Message, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	wrapped, err := normalizeContent(content)
	if err != nil {
		return nil, err
	}
	attachments, previews, err := splitAttachments(o.attachments)
	if err != nil {
		return nil, err
	}

	return &Message{
		content:     wrapped,
		data:        o.data,
		version:     o.version,
		attachments: attachments,
		previews:    previews,
	}, nil
}

// Content returns the MessageML content.
func (m *Message) Content() string { return m.content }

// Data returns the entity data as a JSON string.
func (m *Message) Data() string { return m.data }

// Version returns the message format version.
func (m *Message) Version() string { return m.version }

// Attachments returns a copy of the attachment handles in caller order.
func (m *Message) Attachments() []io.Reader {
	return append([]io.Reader{}, m.attachments...)
}

// Previews returns a copy of the preview handles. It is either empty or
// positionally matched with Attachments.
func (m *Message) Previews() []io.Reader {
	return append([]io.Reader{}, m.previews...)
}

func normalizeContent(c *string) (string, error) {
	if c == nil {
		return "", newCreationError("message content is mandatory")
	}
	content := *c
	// Each side is checked on its own: a single tag is enough to leave the
	// content untouched.
	if !strings.HasPrefix(content, StartTag) && !strings.HasSuffix(content, EndTag) {
		return StartTag + content + EndTag, nil
	}
	return content, nil
}

func splitAttachments(items []Attachment) ([]io.Reader, []io.Reader, error) {
	attachments := make([]io.Reader, 0, len(items))
	previews := make([]io.Reader, 0, len(items))

	for i, item := range items {
		var file, preview io.Reader
		switch a := item.(type) {
		case Single:
			file = a.File
		case *Single:
			if a == nil {
				return nil, nil, nilAttachment(i)
			}
			file = a.File
		case WithPreview:
			file, preview = a.File, a.Preview
		case *WithPreview:
			if a == nil {
				return nil, nil, nilAttachment(i)
			}
			file, preview = a.File, a.Preview
		default:
			return nil, nil, nilAttachment(i)
		}
		attachments = append(attachments, file)
		if preview != nil {
			previews = append(previews, preview)
		}
	}

	if len(previews) > 0 && len(previews) != len(attachments) {
		return nil, nil, newCreationError("message should contain either no preview or as many previews as attachments")
	}
	return attachments, previews, nil
}

func nilAttachment(index int) error {
	return newCreationError(fmt.Sprintf("attachment %d is nil", index+1))
}
