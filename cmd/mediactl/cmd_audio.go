package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// taskStatus mirrors the status endpoint response.
type taskStatus struct {
	TaskID          string   `json:"task_id"`
	Status          string   `json:"status"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Files           []struct {
		FileURL    string `json:"file_url"`
		FileBase64 string `json:"file_base64"`
	} `json:"files,omitempty"`
	Error string `json:"error,omitempty"`
}

func newAudioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Speaker separation of uploaded videos",
	}
	cmd.AddCommand(newAudioSubmitCmd())
	cmd.AddCommand(newAudioStatusCmd())
	cmd.AddCommand(newAudioCancelCmd())
	cmd.AddCommand(newAudioListCmd())
	return cmd
}

func newAudioSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <video>",
		Short: "Upload a video (mp4, mkv, avi, mov) and start speaker separation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			data, err := NewAPIClient(cfg).Upload("/api/extrator_audio/", args[0])
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, data)
		},
	}
}

func newAudioStatusCmd() *cobra.Command {
	var (
		wait     bool
		interval time.Duration
		saveDir  string
	)

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a task, optionally waiting until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)
			statusPath := "/api/extrator_audio/status/" + url.PathEscape(args[0])

			for {
				data, err := client.Get(statusPath)
				if err != nil {
					return err
				}

				var st taskStatus
				if err := json.Unmarshal(data, &st); err != nil {
					return fmt.Errorf("parse status: %w", err)
				}

				if st.Status != "processing" || !wait {
					if saveDir != "" && st.Status == "completed" {
						if err := saveFiles(cmd.OutOrStdout(), saveDir, st); err != nil {
							return err
						}
					}
					if cfg.Output == "json" {
						return printOutput(cmd.OutOrStdout(), cfg.Output, data)
					}
					printStatus(cmd.OutOrStdout(), st)
					return nil
				}

				time.Sleep(interval)
			}
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until the task leaves the processing state")
	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "poll interval used with --wait")
	cmd.Flags().StringVar(&saveDir, "save-dir", "", "write the speaker tracks of a completed task into this directory")
	return cmd
}

func printStatus(w io.Writer, st taskStatus) {
	fmt.Fprintf(w, "task:   %s\nstatus: %s\n", st.TaskID, st.Status)
	if st.DurationSeconds != nil {
		fmt.Fprintf(w, "took:   %.1fs\n", *st.DurationSeconds)
	}
	for _, f := range st.Files {
		fmt.Fprintf(w, "file:   %s\n", f.FileURL)
	}
	if st.Error != "" {
		fmt.Fprintf(w, "error:  %s\n", st.Error)
	}
}

// saveFiles decodes the inlined tracks, naming each after its URL.
func saveFiles(w io.Writer, dir string, st taskStatus) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, f := range st.Files {
		data, err := base64.StdEncoding.DecodeString(f.FileBase64)
		if err != nil {
			return fmt.Errorf("decode %s: %w", f.FileURL, err)
		}
		name := path.Base(f.FileURL)
		if u, err := url.Parse(f.FileURL); err == nil {
			name = path.Base(u.Path)
		}
		dest := filepath.Join(dir, filepath.Base(name))
		if err := os.WriteFile(dest, data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(w, "saved:  %s\n", dest)
	}
	return nil
}

func newAudioCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a task that is still processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			data, err := NewAPIClient(cfg).Delete("/api/extrator_audio/status/" + url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, data)
		},
	}
}

func newAudioListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			data, err := NewAPIClient(cfg).Get("/api/extrator_audio/tasks")
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, data)
		},
	}
}
