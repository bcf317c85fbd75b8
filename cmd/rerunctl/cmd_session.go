package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/user/rerunctl/internal/client"
	"github.com/user/rerunctl/internal/endpoint"
	"github.com/user/rerunctl/internal/state"
	"github.com/user/rerunctl/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(
		sessionShowCmd, sessionCreateCmd, sessionPlayCmd, sessionHeartbeatCmd,
		sessionInfoCmd, sessionLoadRangeCmd, sessionRefreshUICmd, sessionModeCmd,
		sessionClearCmd, sessionListCmd, sessionViewerCmd,
	)
}

var (
	okColor   = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnColor = color.New(color.FgYellow).SprintFunc()
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the bound recording session",
}

// boundRecording returns the persisted recording id, refusing to continue
// when none is bound.
func boundRecording(store *state.Store) (types.RecordingID, error) {
	id := store.RecordingID()
	if id.IsZero() {
		return "", fmt.Errorf("no recording bound; run 'rerunctl session create <dataset> <collection>' first")
	}
	return id, nil
}

// explain turns an expired-session 404 into an actionable message.
func explain(op string, id types.RecordingID, err error) error {
	if client.IsNotFound(err) {
		return fmt.Errorf("%s: recording %s not found or expired on backend", op, id)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the bound recording and selection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openState(loadConfig())
		if err != nil {
			return err
		}
		snap := store.Snapshot()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		recording := string(snap.RecordingID)
		if recording == "" {
			recording = warnColor("(unbound)")
		}
		fmt.Fprintf(w, "RECORDING\t%s\n", recording)
		fmt.Fprintf(w, "APP ID\t%s\n", snap.ApplicationID)
		fmt.Fprintf(w, "SOURCE\t%s\n", snap.SourceDescriptor)
		fmt.Fprintf(w, "DATASET\t%s\n", snap.Dataset)
		fmt.Fprintf(w, "COLLECTION\t%s\n", snap.Collection)
		fmt.Fprintf(w, "CATALOG\t%d databases\n", len(snap.DatabaseStructure))
		return w.Flush()
	},
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create <dataset> <collection>",
	Short: "Create a source on the backend and bind its recording",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := openState(cfg)
		if err != nil {
			return err
		}

		src, err := newClient(cfg).CreateSource(cmd.Context(), types.CreateSourceRequest{
			Dataset:    args[0],
			Collection: args[1],
		})
		if err != nil {
			return fmt.Errorf("create source: %w", err)
		}

		store.SetRerunInfo(src.AppID, src.ConnectURL, src.RecordingUUID)
		store.SetSelection(args[1], args[0])

		fmt.Fprintf(os.Stdout, "%s recording %s (app %s, port %d)\n", okColor("bound"), src.RecordingUUID, src.AppID, src.Port)
		fmt.Fprintf(os.Stdout, "viewer: %s\n", endpoint.ViewerURL(cfg.Viewer.BaseURL, src.ConnectURL))
		return nil
	},
}

var sessionPlayCmd = &cobra.Command{
	Use:   "play",
	Short: "Start playback of the bound recording",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := openState(cfg)
		if err != nil {
			return err
		}
		id, err := boundRecording(store)
		if err != nil {
			return err
		}
		resp, err := newClient(cfg).PlayData(cmd.Context(), id)
		if err != nil {
			return explain("play", id, err)
		}
		fmt.Fprintf(os.Stdout, "%s %s\n", okColor(resp.Status), id)
		return nil
	},
}

var sessionHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Send one heartbeat for the bound recording",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := openState(cfg)
		if err != nil {
			return err
		}
		id, err := boundRecording(store)
		if err != nil {
			return err
		}
		resp, err := newClient(cfg).Heartbeat(cmd.Context(), id)
		if err != nil {
			return explain("heartbeat", id, err)
		}
		fmt.Fprintf(os.Stdout, "%s %s\n", okColor(resp.Status), id)
		return nil
	},
}

var sessionInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print backend info for the bound recording",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := openState(cfg)
		if err != nil {
			return err
		}
		id, err := boundRecording(store)
		if err != nil {
			return err
		}
		info, err := newClient(cfg).GetInfo(cmd.Context(), id)
		if err != nil {
			return explain("info", id, err)
		}

		var pretty any = info
		if len(info.Raw) > 0 {
			var doc map[string]any
			if err := json.Unmarshal(info.Raw, &doc); err == nil {
				pretty = doc
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pretty)
	},
}

var sessionLoadRangeCmd = &cobra.Command{
	Use:   "load-range <start> <end>",
	Short: "Ask the backend to (re)send a frame range",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid start index %q: %w", args[0], err)
		}
		end, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid end index %q: %w", args[1], err)
		}

		cfg := loadConfig()
		store, err := openState(cfg)
		if err != nil {
			return err
		}
		id, err := boundRecording(store)
		if err != nil {
			return err
		}
		resp, err := newClient(cfg).LoadRange(cmd.Context(), id, types.LoadRangeRequest{StartIdx: start, EndIdx: end})
		if err != nil {
			return explain("load-range", id, err)
		}
		fmt.Fprintf(os.Stdout, "%s frames %d-%d\n", okColor(resp.Status), start, end)
		return nil
	},
}

var sessionRefreshUICmd = &cobra.Command{
	Use:   "refresh-ui",
	Short: "Recompute the viewer UI panels without reloading data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := openState(cfg)
		if err != nil {
			return err
		}
		id, err := boundRecording(store)
		if err != nil {
			return err
		}
		resp, err := newClient(cfg).RefreshUI(cmd.Context(), id)
		if err != nil {
			return explain("refresh-ui", id, err)
		}
		fmt.Fprintf(os.Stdout, "%s %s\n", okColor(resp.Status), id)
		return nil
	},
}

var sessionModeCmd = &cobra.Command{
	Use:       "mode <streaming|alignment> <on|off>",
	Short:     "Toggle streaming or alignment mode",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"streaming", "alignment"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[1] {
		case "on", "true":
			enabled = true
		case "off", "false":
			enabled = false
		default:
			return fmt.Errorf("invalid switch %q: want on or off", args[1])
		}

		cfg := loadConfig()
		store, err := openState(cfg)
		if err != nil {
			return err
		}
		id, err := boundRecording(store)
		if err != nil {
			return err
		}

		c := newClient(cfg)
		var resp *types.StatusResponse
		switch args[0] {
		case "streaming":
			resp, err = c.EnableStreamingMode(cmd.Context(), id, enabled)
		case "alignment":
			resp, err = c.EnableAlignmentMode(cmd.Context(), id, enabled)
		default:
			return fmt.Errorf("unknown mode %q: want streaming or alignment", args[0])
		}
		if err != nil {
			return explain(args[0]+" mode", id, err)
		}
		fmt.Fprintf(os.Stdout, "%s %s=%t\n", okColor(resp.Status), args[0], enabled)
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Unbind the recording locally",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openState(loadConfig())
		if err != nil {
			return err
		}
		store.SetRerunInfo("", "", "")
		fmt.Println("Recording unbound.")
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions on the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := openState(cfg)
		if err != nil {
			return err
		}
		sessions, err := newClient(cfg).ListSessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		ids := make([]types.RecordingID, 0, len(sessions))
		for id := range sessions {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		bound := store.RecordingID()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RECORDING\tAPP\tPORT\tPLAYING\tUPTIME\t")
		for _, id := range ids {
			s := sessions[id]
			marker := ""
			if id == bound {
				marker = okColor("*")
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\t%s\n", id, s.AppID, s.Port, s.IsPlaying, s.Uptime, marker)
		}
		return w.Flush()
	},
}

var sessionViewerCmd = &cobra.Command{
	Use:   "viewer",
	Short: "Print the viewer URL for the bound recording",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := openState(cfg)
		if err != nil {
			return err
		}
		if _, err := boundRecording(store); err != nil {
			return err
		}
		fmt.Println(endpoint.ViewerURL(cfg.Viewer.BaseURL, store.Snapshot().SourceDescriptor))
		return nil
	},
}
