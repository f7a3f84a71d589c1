package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type client struct {
	addr    string
	http    *http.Client
	logger  *logrus.Logger
	timeout time.Duration
}

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	if err := newRootCommand(logger).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(logger *logrus.Logger) *cobra.Command {
	c := &client{logger: logger}

	root := &cobra.Command{
		Use:          "kultura-client",
		Short:        "Exercise a running kultura server",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.http = &http.Client{Timeout: c.timeout}
		},
	}
	root.PersistentFlags().StringVar(&c.addr, "addr", "http://localhost:3000", "kultura server address")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 3*time.Minute, "Request timeout")

	root.AddCommand(
		c.contentCommand("translate", "Translate and localize text or a document", "localizedContent"),
		c.contentCommand("summarize", "Summarize and localize text or a document", "summary"),
		c.quizCommand(),
		c.feedbackCommand(),
		c.docxCommand(),
	)
	return root
}

// readText returns the --text value or the contents of --file.
func readText(text, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(data), nil
	}
	if text == "" {
		return "", fmt.Errorf("either --file or --text must be provided")
	}
	return text, nil
}

func (c *client) contentCommand(name, short, field string) *cobra.Command {
	var text, file, lang string

	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, _ := json.Marshal(map[string]string{"preferredLanguage": lang})

			buf := new(bytes.Buffer)
			mw := multipart.NewWriter(buf)
			mw.WriteField("profile", string(profile))

			switch ext := filepath.Ext(file); {
			case ext == ".pdf" || ext == ".png" || ext == ".jpg" || ext == ".jpeg":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				fw, err := mw.CreateFormFile("file", filepath.Base(file))
				if err != nil {
					return err
				}
				fw.Write(data)
			default:
				content, err := readText(text, file)
				if err != nil {
					return err
				}
				mw.WriteField("content", content)
			}
			mw.Close()

			var out map[string]string
			if err := c.post(cmd.Context(), "/"+name, mw.FormDataContentType(), buf, &out); err != nil {
				return err
			}
			fmt.Println(out[field])
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Text to send")
	cmd.Flags().StringVar(&file, "file", "", "Text, PDF or image file to send")
	cmd.Flags().StringVar(&lang, "lang", "fil", "Preferred language code")
	return cmd
}

func (c *client) quizCommand() *cobra.Command {
	var text, file, lang string

	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Generate a quiz from text",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readText(text, file)
			if err != nil {
				return err
			}

			var out json.RawMessage
			if err := c.postJSON(cmd.Context(), "/generate-quiz", map[string]string{"content": content, "language": lang}, &out); err != nil {
				return err
			}

			var pretty bytes.Buffer
			json.Indent(&pretty, out, "", "  ")
			fmt.Println(pretty.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Text to quiz on")
	cmd.Flags().StringVar(&file, "file", "", "Text file to quiz on")
	cmd.Flags().StringVar(&lang, "lang", "", "Quiz language name (default: language of the content)")
	return cmd
}

func (c *client) feedbackCommand() *cobra.Command {
	var score float64
	var lang string

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Generate feedback for a quiz score",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]string
			if err := c.postJSON(cmd.Context(), "/generate-feedback", map[string]any{"score": score, "language": lang}, &out); err != nil {
				return err
			}
			fmt.Println(out["feedback"])
			return nil
		},
	}
	cmd.Flags().Float64Var(&score, "score", 80, "Quiz score in percent")
	cmd.Flags().StringVar(&lang, "lang", "Filipino", "Feedback language name")
	return cmd
}

func (c *client) docxCommand() *cobra.Command {
	var text, file, output string

	cmd := &cobra.Command{
		Use:   "docx",
		Short: "Render markdown as a Word document",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readText(text, file)
			if err != nil {
				return err
			}

			body, _ := json.Marshal(map[string]string{"content": content})
			resp, err := c.do(cmd.Context(), "/download-docx", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()

			n, err := io.Copy(f, resp.Body)
			if err != nil {
				return err
			}
			c.logger.WithFields(logrus.Fields{
				"file":  output,
				"bytes": n,
			}).Info("Document saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Markdown to render")
	cmd.Flags().StringVar(&file, "file", "", "Markdown file to render")
	cmd.Flags().StringVarP(&output, "output", "o", "localized-content.docx", "Output file")
	return cmd
}

func (c *client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.post(ctx, path, "application/json", bytes.NewReader(body), out)
}

func (c *client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	resp, err := c.do(ctx, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// do sends a POST and turns error responses into Go errors.
func (c *client) do(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).Error("Request failed")
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"path":        path,
		"status":      resp.StatusCode,
		"request_id":  resp.Header.Get("X-Request-ID"),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Response received")

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var apiErr struct {
			Error   string `json:"error"`
			Details any    `json:"details"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("%s: %s (%v)", resp.Status, apiErr.Error, apiErr.Details)
	}
	return resp, nil
}
