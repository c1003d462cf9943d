package message

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func handle(content string) *bytes.Reader {
	return bytes.NewReader([]byte(content))
}

func sameHandles(t *testing.T, got []io.Reader, want ...io.Reader) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d handles, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("handle %d: not the one passed in", i)
		}
	}
}

// --- content ---

func TestNew_WrapsPlainContent(t *testing.T) {
	for _, content := range []string{"x", "Hello <b>world</b>", " <messageML>", "</messageML> "} {
		msg, err := New(content)
		if err != nil {
			t.Fatalf("New(%q): %v", content, err)
		}
		want := "<messageML>" + content + "</messageML>"
		if msg.Content() != want {
			t.Errorf("New(%q).Content() = %q, want %q", content, msg.Content(), want)
		}
	}
}

func TestNew_KeepsFullyTaggedContent(t *testing.T) {
	content := "<messageML>hello</messageML>"
	msg, err := New(content)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content() != content {
		t.Errorf("expected content unchanged, got %q", msg.Content())
	}
}

func TestNew_StartTagOnlyIsNotRewrapped(t *testing.T) {
	content := "<messageML>hello"
	msg, err := New(content)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content() != content {
		t.Errorf("expected %q, got %q", content, msg.Content())
	}
}

func TestNew_EndTagOnlyIsNotRewrapped(t *testing.T) {
	content := "hello</messageML>"
	msg, err := New(content)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content() != content {
		t.Errorf("expected %q, got %q", content, msg.Content())
	}
}

func TestNew_EmptyContentIsWrapped(t *testing.T) {
	msg, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content() != "<messageML></messageML>" {
		t.Errorf("expected empty MessageML, got %q", msg.Content())
	}
}

func TestBuild_AbsentContent(t *testing.T) {
	msg, err := Build(nil)
	if err == nil {
		t.Fatal("expected error for absent content")
	}
	if msg != nil {
		t.Error("expected no message on error")
	}
	if !errors.Is(err, ErrMessageCreation) {
		t.Errorf("expected ErrMessageCreation, got %v", err)
	}
	var ce *CreationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CreationError, got %T", err)
	}
	if ce.Reason != "message content is mandatory" {
		t.Errorf("unexpected reason: %q", ce.Reason)
	}
}

func TestBuild_PresentContent(t *testing.T) {
	content := "hi"
	msg, err := Build(&content, WithData("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content() != "<messageML>hi</messageML>" || msg.Data() != "{}" {
		t.Errorf("unexpected message %q %q", msg.Content(), msg.Data())
	}
}

// --- defaults ---

func TestNew_Defaults(t *testing.T) {
	a1, a2 := handle("a1"), handle("a2")
	msg, err := New("x", WithAttachments(Single{a1}, Single{a2}), WithVersion(""))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Version() != "" {
		t.Errorf("expected empty version, got %q", msg.Version())
	}
	if msg.Data() != "" {
		t.Errorf("expected empty data, got %q", msg.Data())
	}
}

func TestNew_DataAndVersion(t *testing.T) {
	msg, err := New("x", WithData(`{"a":1}`), WithVersion("2.0"))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Data() != `{"a":1}` {
		t.Errorf("unexpected data %q", msg.Data())
	}
	if msg.Version() != "2.0" {
		t.Errorf("unexpected version %q", msg.Version())
	}
}

// --- attachments ---

func TestNew_NoAttachments(t *testing.T) {
	msg, err := New("x")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Attachments() == nil || len(msg.Attachments()) != 0 {
		t.Errorf("expected empty non-nil attachments, got %v", msg.Attachments())
	}
	if msg.Previews() == nil || len(msg.Previews()) != 0 {
		t.Errorf("expected empty non-nil previews, got %v", msg.Previews())
	}
}

func TestNew_NilAttachmentList(t *testing.T) {
	msg, err := New("x", WithAttachments())
	if err != nil {
		t.Fatal(err)
	}
	if len(msg.Attachments()) != 0 || len(msg.Previews()) != 0 {
		t.Error("expected empty attachments and previews")
	}
}

func TestNew_SingleAttachments(t *testing.T) {
	a1, a2 := handle("a1"), handle("a2")
	msg, err := New("x", WithAttachments(Single{a1}, Single{a2}))
	if err != nil {
		t.Fatal(err)
	}
	sameHandles(t, msg.Attachments(), a1, a2)
	sameHandles(t, msg.Previews())
}

func TestNew_AttachmentsWithPreviews(t *testing.T) {
	a1, a2 := handle("a1"), handle("a2")
	p1, p2 := handle("p1"), handle("p2")
	msg, err := New("x", WithAttachments(WithPreview{a1, p1}, WithPreview{a2, p2}))
	if err != nil {
		t.Fatal(err)
	}
	sameHandles(t, msg.Attachments(), a1, a2)
	sameHandles(t, msg.Previews(), p1, p2)
}

func TestNew_PartialPreviews(t *testing.T) {
	a1, a2, p1 := handle("a1"), handle("a2"), handle("p1")
	_, err := New("x", WithAttachments(WithPreview{a1, p1}, Single{a2}))
	if !errors.Is(err, ErrMessageCreation) {
		t.Fatalf("expected ErrMessageCreation, got %v", err)
	}
}

func TestNew_NilPreviewCountsAsNone(t *testing.T) {
	a1, a2 := handle("a1"), handle("a2")
	msg, err := New("x", WithAttachments(WithPreview{File: a1}, Single{a2}))
	if err != nil {
		t.Fatal(err)
	}
	sameHandles(t, msg.Attachments(), a1, a2)
	sameHandles(t, msg.Previews())
}

func TestNew_WithAttachmentsAppends(t *testing.T) {
	a1, a2 := handle("a1"), handle("a2")
	msg, err := New("x", WithAttachments(Single{a1}), WithAttachments(Single{a2}))
	if err != nil {
		t.Fatal(err)
	}
	sameHandles(t, msg.Attachments(), a1, a2)
}

func TestMessage_AccessorsReturnCopies(t *testing.T) {
	a1, p1 := handle("a1"), handle("p1")
	msg, err := New("x", WithAttachments(WithPreview{a1, p1}))
	if err != nil {
		t.Fatal(err)
	}
	got := msg.Attachments()
	got[0] = nil
	sameHandles(t, msg.Attachments(), a1)

	previews := msg.Previews()
	previews[0] = nil
	sameHandles(t, msg.Previews(), p1)
}

// --- pointer and nil attachments ---

func TestNew_PointerAttachmentsKeepOrder(t *testing.T) {
	a1, a2, a3 := handle("a1"), handle("a2"), handle("a3")
	msg, err := New("x", WithAttachments(&Single{a1}, Single{a2}, &Single{File: a3}))
	if err != nil {
		t.Fatal(err)
	}
	sameHandles(t, msg.Attachments(), a1, a2, a3)
	sameHandles(t, msg.Previews())
}

func TestNew_PointerWithPreview(t *testing.T) {
	a1, a2, p1, p2 := handle("a1"), handle("a2"), handle("p1"), handle("p2")
	msg, err := New("x", WithAttachments(&WithPreview{a1, p1}, WithPreview{a2, p2}))
	if err != nil {
		t.Fatal(err)
	}
	sameHandles(t, msg.Attachments(), a1, a2)
	sameHandles(t, msg.Previews(), p1, p2)
}

func TestNew_PointerSingleCountsTowardsPreviewMismatch(t *testing.T) {
	a1, a2, p1 := handle("a1"), handle("a2"), handle("p1")
	_, err := New("x", WithAttachments(WithPreview{a1, p1}, &Single{a2}))
	if !errors.Is(err, ErrMessageCreation) {
		t.Fatalf("expected preview count mismatch, got %v", err)
	}
}

func TestNew_NilAttachmentElement(t *testing.T) {
	var nilSingle *Single
	var nilPreview *WithPreview
	for name, item := range map[string]Attachment{
		"nil interface":    nil,
		"nil *Single":      nilSingle,
		"nil *WithPreview": nilPreview,
	} {
		msg, err := New("x", WithAttachments(Single{handle("a")}, item))
		if !errors.Is(err, ErrMessageCreation) {
			t.Errorf("%s: expected ErrMessageCreation, got %v", name, err)
		}
		if msg != nil {
			t.Errorf("%s: expected no message", name)
		}
	}
}
