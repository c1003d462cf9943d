package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"os"

	"symphonybdk/internal/message"

	"github.com/spf13/cobra"
)

func messageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Build outgoing messages",
	}
	cmd.AddCommand(messageBuildCmd())
	return cmd
}

type buildOptions struct {
	content     *string // nil when --content was not given
	data        string
	version     string
	attachments []string
	previews    []string // matched to attachments by position
	out         string
}

func messageBuildCmd() *cobra.Command {
	var opts buildOptions
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Validate a message and optionally write its multipart request body",
		Long: `Validates the message content and attachments the way the message service
expects them, prints a JSON summary, and with --out writes the
multipart/form-data body to a file.

Each --preview belongs to the --attachment at the same position. Either no
attachment has a preview or all of them do.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("content") {
				opts.content = nil
			}
			return runMessageBuild(opts, cmd.OutOrStdout())
		},
	}
	opts.content = cmd.Flags().String("content", "", "message content (wrapped in <messageML> if needed)")
	cmd.Flags().StringVar(&opts.data, "data", "", "structured object JSON")
	cmd.Flags().StringVar(&opts.version, "version", "", "message format version (default: latest)")
	cmd.Flags().StringArrayVar(&opts.attachments, "attachment", nil, "attachment file (repeatable)")
	cmd.Flags().StringArrayVar(&opts.previews, "preview", nil, "preview of the attachment at the same position (repeatable)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the multipart body to this file")
	return cmd
}

type buildSummary struct {
	Content     string   `json:"content"`
	Data        string   `json:"data,omitempty"`
	Version     string   `json:"version,omitempty"`
	Attachments []string `json:"attachments"`
	Previews    []string `json:"previews"`
	Output      string   `json:"output,omitempty"`
	ContentType string   `json:"contentType,omitempty"`
}

func runMessageBuild(opts buildOptions, w io.Writer) error {
	var files []*os.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	open := func(path string) (*os.File, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open attachment: %w", err)
		}
		files = append(files, f)
		return f, nil
	}

	if len(opts.previews) > len(opts.attachments) {
		return fmt.Errorf("%d previews given for %d attachments", len(opts.previews), len(opts.attachments))
	}
	items := make([]message.Attachment, 0, len(opts.attachments))
	for i, path := range opts.attachments {
		f, err := open(path)
		if err != nil {
			return err
		}
		if i >= len(opts.previews) {
			items = append(items, message.Single{File: f})
			continue
		}
		p, err := open(opts.previews[i])
		if err != nil {
			return err
		}
		items = append(items, message.WithPreview{File: f, Preview: p})
	}

	msg, err := message.Build(opts.content,
		message.WithData(opts.data),
		message.WithVersion(opts.version),
		message.WithAttachments(items...),
	)
	if err != nil {
		return err
	}

	summary := buildSummary{
		Content:     msg.Content(),
		Data:        msg.Data(),
		Version:     msg.Version(),
		Attachments: fileNames(message.FieldAttachment, msg.Attachments()),
		Previews:    fileNames(message.FieldPreview, msg.Previews()),
	}

	if opts.out != "" {
		contentType, err := writeBody(opts.out, msg)
		if err != nil {
			return err
		}
		summary.Output = opts.out
		summary.ContentType = contentType
		logger.Info("message body written", "file", opts.out, "attachments", len(summary.Attachments))
	}

	data, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Fprintln(w, string(data))
	return nil
}

func fileNames(field string, readers []io.Reader) []string {
	names := make([]string, len(readers))
	for i, r := range readers {
		names[i] = message.FileName(field, i, r)
	}
	return names
}

func writeBody(path string, msg *message.Message) (string, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	mw := multipart.NewWriter(f)
	if err := msg.WriteMultipart(mw); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finish multipart body: %w", err)
	}
	return mw.FormDataContentType(), f.Close()
}
