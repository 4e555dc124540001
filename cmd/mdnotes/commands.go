package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alexjbarnes/mdnotes/internal/auth"
	"github.com/alexjbarnes/mdnotes/internal/config"
	apperrors "github.com/alexjbarnes/mdnotes/internal/errors"
	"github.com/alexjbarnes/mdnotes/internal/models"
	"github.com/alexjbarnes/mdnotes/internal/notes"
	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mdnotes",
		Short: "Markdown notes committed to GitHub",
		Long: `mdnotes keeps a tree of markdown notes. The baseline comes from the
content directory and the last synced state; edits are queued locally
and committed to a GitHub repository, one commit per change, on sync.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		serveCmd(),
		mcpCmd(),
		syncCmd(),
		pullCmd(),
		statusCmd(),
		loginCmd(),
		logoutCmd(),
		noteCmd(),
		folderCmd(),
		rmCmd(),
		routesCmd(),
		diffCmd(),
		keygenCmd(),
	)

	return root
}

// withApp opens the app for a one-shot command and closes it after fn.
func withApp(fn func(a *app) error) error {
	a, err := openApp(os.Stderr, true)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

func serveCmd() *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, websocket feed and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), !noWatch)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload when files in the content directory change")

	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context())
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Commit every pending change to GitHub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app) error {
				res, err := a.ws.Sync(cmd.Context())
				if errors.Is(err, apperrors.ErrMissingCredentials) {
					return fmt.Errorf("%w: run mdnotes login or set GITHUB_TOKEN and GITHUB_REPO", err)
				}

				if err != nil {
					return fmt.Errorf("%d change(s) committed before the failure: %w", res.Applied, err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%d change(s) committed\n", res.Applied)

				return nil
			})
		},
	}
}

func pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Merge the GitHub repository into local state, newest edit wins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app) error {
				snap, err := a.ws.Pull(cmd.Context())
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%d folder(s), %d note(s)\n", len(snap.Folders), len(snap.Notes))

				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the repository and the pending changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app) error {
				creds, err := a.ws.Credentials()
				if err != nil {
					return err
				}

				changes, err := a.ws.PendingChanges()
				if err != nil {
					return err
				}

				return printStatus(cmd.OutOrStdout(), creds, changes, asJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func printStatus(w io.Writer, creds models.Credentials, changes []models.PendingChange, asJSON bool) error {
	if asJSON {
		if changes == nil {
			changes = []models.PendingChange{}
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(map[string]any{
			"repo":    creds.Repo,
			"linked":  creds.Valid(),
			"pending": changes,
		})
	}

	repo := creds.Repo
	if !creds.Valid() {
		repo = "(not linked)"
	}

	fmt.Fprintf(w, "repository: %s\n", repo)
	fmt.Fprintf(w, "pending:    %d\n", len(changes))

	if len(changes) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range changes {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", c.Type, c.ItemType, c.Path)
	}

	return tw.Flush()
}

func loginCmd() *cobra.Command {
	var token, repo string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the GitHub token and repository",
		Long: `Save a personal access token with contents:write on the repository.
Without --token the token is read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.ValidateRepo(repo); err != nil {
				return err
			}

			if token == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "GitHub token: ")

				scanner := bufio.NewScanner(cmd.InOrStdin())
				if !scanner.Scan() {
					return errors.New("no token given")
				}

				token = strings.TrimSpace(scanner.Text())
			}

			return withApp(func(a *app) error {
				if err := a.ws.SetCredentials(models.Credentials{Token: token, Repo: repo}); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "linked %s\n", repo)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "personal access token")
	cmd.Flags().StringVar(&repo, "repo", "", "repository as owner/name")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved GitHub credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app) error {
				return a.ws.SetCredentials(models.Credentials{})
			})
		},
	}
}

func noteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Create and edit notes",
	}

	cmd.AddCommand(noteAddCmd(), noteEditCmd(), noteShowCmd())

	return cmd
}

func noteAddCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:     "add <title>",
		Short:   "Queue a new empty note",
		Example: `mdnotes note add --dir work "meeting notes"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				n, err := a.ws.AddNote(dir, args[0])
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", n.ID, n.Path)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "folder to create the note in")

	return cmd
}

func noteEditCmd() *cobra.Command {
	var (
		title string
		file  string
		tags  []string
	)

	cmd := &cobra.Command{
		Use:   "edit <id or path>",
		Short: "Change a note's title, body or tags",
		Long: `Change a note in place and queue the edit. --file replaces the body
with the file's content; "-" reads it from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd models.NoteUpdate

			if cmd.Flags().Changed("title") {
				upd.Title = &title
			}

			if cmd.Flags().Changed("tag") {
				upd.Tags = tags
			}

			if file != "" {
				body, err := readBody(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}

				upd.Content = &body
			}

			return withApp(func(a *app) error {
				n, err := findNote(a.ws, args[0])
				if err != nil {
					return err
				}

				n, err = a.ws.UpdateNote(n.ID, upd)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", n.Path)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&file, "file", "", `file holding the new body, "-" for stdin`)
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "replacement tags, repeatable")

	return cmd
}

func noteShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id or path>",
		Short: "Print a note's body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				n, err := findNote(a.ws, args[0])
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), n.Content)

				return nil
			})
		},
	}
}

// findNote resolves a note id, falling back to a path.
func findNote(ws *notes.Workspace, ref string) (models.Note, error) {
	n, err := ws.Note(ref)
	if err == nil {
		return n, nil
	}

	return ws.NoteByPath(ref)
}

func readBody(stdin io.Reader, file string) (string, error) {
	var (
		data []byte
		err  error
	)

	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}

	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	return string(data), nil
}

func folderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Create folders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <path>",
		Short: "Queue a new folder, parents included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				return a.ws.AddFolder(args[0])
			})
		},
	})

	return cmd
}

func rmCmd() *cobra.Command {
	var folder bool

	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Queue the deletion of a note or folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemType := models.ItemFile
			if folder {
				itemType = models.ItemFolder
			}

			return withApp(func(a *app) error {
				return a.ws.DeleteItem(args[0], itemType)
			})
		},
	}

	cmd.Flags().BoolVar(&folder, "folder", false, "delete a folder and everything in it")

	return cmd
}

func routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print one static route per note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app) error {
				for _, r := range a.ws.Routes() {
					fmt.Fprintln(cmd.OutOrStdout(), r)
				}

				return nil
			})
		},
	}
}

func diffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <path>",
		Short: "Show what the pending change to a note does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				d, err := a.ws.Diff(args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s (+%d -%d)\n", d.Type, d.Path, d.Insertions, d.Deletions)
				fmt.Fprint(out, d.Patch)

				return nil
			})
		},
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new API key for API_KEYS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), auth.GenerateAPIKey())
			return nil
		},
	}
}
