package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"texstream/pkg/types"
)

// apiClient talks to the admin API of a running daemon.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 45 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var er types.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error != "" {
			return errors.Errorf("%s %s: %s (%d)", method, path, er.Error, resp.StatusCode)
		}
		return errors.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func ibytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

func poolBytes(n int64) string {
	if n == 0 {
		return "unlimited"
	}
	return ibytes(n)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatus(w io.Writer, st types.StatusResponse) {
	s := st.Stats
	fmt.Fprintf(w, "paused:     %v  stage %d/%d  cycles %s\n", st.Paused, st.ProcessingStage, st.NumStages, humanize.Comma(int64(s.Cycles)))
	fmt.Fprintf(w, "tracking:   %d textures, %d levels, %d dynamic primitives, %d viewpoints\n",
		st.NumTextures, st.NumLevels, st.NumDynamicPrimitives, st.NumViewpoints)
	fmt.Fprintf(w, "pool:       %s  budget %s\n", poolBytes(s.PoolSize), ibytes(s.MemoryBudget))
	fmt.Fprintf(w, "required:   %s  max ever %s  over budget %s\n", ibytes(s.RequiredPool), ibytes(s.MaxEverRequired), ibytes(s.OverBudget))
	fmt.Fprintf(w, "mips:       visible %s  hidden %s  forced %s  unknown ref %s  cached %s\n",
		ibytes(s.VisibleMips), ibytes(s.HiddenMips), ibytes(s.ForcedMips), ibytes(s.UnknownRefMips), ibytes(s.CachedMips))
	fmt.Fprintf(w, "requests:   %d wanting, %d loads, %d cancels, %s pending, %s/s\n",
		s.NumWanting, s.NumLoadRequests, s.NumCancelRequests, ibytes(s.PendingRequests), humanize.IBytes(uint64(s.MipIOBandwidth)))
	fmt.Fprintf(w, "uptime:     %s\n", time.Duration(st.UptimeSeconds)*time.Second)
	if st.LastError != "" {
		fmt.Fprintf(w, "last error: %s\n", st.LastError)
	}
}

func printTextures(w io.Writer, ts []types.TextureStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tGROUP\tRESIDENT\tREQUESTED\tWANTED\tBUDGETED\tSIZE\tSTATE")
	for _, t := range ts {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%d\t%d\t%d\t%s\t%s\n",
			t.Name, t.Group, t.ResidentMips, t.MipCount, t.RequestedMips, t.PerfectWantedMips, t.BudgetedMips, ibytes(t.ResidentBytes), t.State)
	}
	return tw.Flush()
}

// addClientCommands registers the admin commands on root.
func addClientCommands(root *cobra.Command, opts *rootOptions) {
	client := func() *apiClient { return newAPIClient(opts.server) }
	var asJSON bool

	statusCmd := &cobra.Command{Use: "status", Short: "Show streaming status", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		var st types.StatusResponse
		if err := client().do(cmd.Context(), http.MethodGet, "/status", nil, &st); err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), st)
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	}}
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	var tf struct {
		name, group          string
		unknownRef, inFlight bool
	}
	texturesCmd := &cobra.Command{Use: "textures", Short: "List tracked textures", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if tf.name != "" {
			q.Set("name", tf.name)
		}
		if tf.group != "" {
			q.Set("group", tf.group)
		}
		if tf.unknownRef {
			q.Set("unknown_ref", "true")
		}
		if tf.inFlight {
			q.Set("in_flight", "true")
		}
		path := "/textures"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		var resp types.TexturesResponse
		if err := client().do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		return printTextures(cmd.OutOrStdout(), resp.Textures)
	}}
	texturesCmd.Flags().StringVar(&tf.name, "name", "", "Substring of the texture name")
	texturesCmd.Flags().StringVar(&tf.group, "group", "", "LOD group")
	texturesCmd.Flags().BoolVar(&tf.unknownRef, "unknown-ref", false, "Only textures kept by the unknown reference heuristic")
	texturesCmd.Flags().BoolVar(&tf.inFlight, "in-flight", false, "Only textures with a pending resize")
	texturesCmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	investigateCmd := &cobra.Command{Use: "investigate <name>", Short: "Explain how a texture is sized", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.InvestigateResponse
		if err := client().do(cmd.Context(), http.MethodGet, "/textures/"+url.PathEscape(args[0])+"/investigate", nil, &resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	}}

	updateCmd := &cobra.Command{Use: "update <name>", Short: "Recompute one texture immediately", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.UpdateTextureResponse
		if err := client().do(cmd.Context(), http.MethodPost, "/textures/"+url.PathEscape(args[0])+"/update", nil, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: wanted %d mips, action %s\n", resp.Name, resp.WantedMips, resp.Action)
		return nil
	}}

	streamOutCmd := &cobra.Command{Use: "streamout <mb>", Short: "Free texture memory by dropping mips", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		mb, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || mb <= 0 {
			return errors.Errorf("invalid size %q: want a positive number of MB", args[0])
		}
		var resp types.StreamOutResponse
		if err := client().do(cmd.Context(), http.MethodPost, "/streamout", types.StreamOutRequest{MB: mb}, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "freed %s of %s (succeeded: %v)\n", ibytes(resp.FreedBytes), ibytes(resp.RequestedBytes), resp.Succeeded)
		return nil
	}}

	pauseCmd := func(use, path, short string) *cobra.Command {
		return &cobra.Command{Use: use, Short: short, Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
			var resp types.PauseResponse
			if err := client().do(cmd.Context(), http.MethodPost, path, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "paused: %v\n", resp.Paused)
			return nil
		}}
	}

	resetMaxCmd := &cobra.Command{Use: "reset-max", Short: "Reset the max ever required pool size", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.ResetMaxResponse
		if err := client().do(cmd.Context(), http.MethodPost, "/reset-max", nil, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "previous max ever required: %s\n", ibytes(resp.Previous))
		return nil
	}}

	var blockTimeout time.Duration
	blockCmd := &cobra.Command{Use: "block", Short: "Wait for in-flight streaming requests", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.BlockResponse
		path := "/block?timeout_ms=" + strconv.FormatInt(blockTimeout.Milliseconds(), 10)
		if err := client().do(cmd.Context(), http.MethodPost, path, nil, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pending: %d\n", resp.Pending)
		return nil
	}}
	blockCmd.Flags().DurationVar(&blockTimeout, "timeout", time.Second, "Maximum wait (server caps it at 30s)")

	levelsCmd := &cobra.Command{Use: "levels", Short: "List levels, or show/hide one", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.LevelsResponse
		if err := client().do(cmd.Context(), http.MethodGet, "/levels", nil, &resp); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPRIMITIVES\tTEXTURES\tVISIBLE\tBUILDING")
		for _, l := range resp.Levels {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%v\t%v\n", l.ID, l.Primitives, l.Textures, l.Visible, l.Building)
		}
		return tw.Flush()
	}}
	visibility := func(use string, visible bool) *cobra.Command {
		return &cobra.Command{Use: use + " <id>", Short: use + " a level", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
			path := "/levels/" + url.PathEscape(args[0]) + "/visibility"
			return client().do(cmd.Context(), http.MethodPut, path, types.LevelVisibilityRequest{Visible: visible}, nil)
		}}
	}
	levelsCmd.AddCommand(visibility("show", true), visibility("hide", false))

	var ef struct {
		name, texture string
		limit         int
	}
	eventsCmd := &cobra.Command{Use: "events", Short: "Show recent streaming events from the event log", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if ef.name != "" {
			q.Set("name", ef.name)
		}
		if ef.texture != "" {
			q.Set("texture", ef.texture)
		}
		if ef.limit > 0 {
			q.Set("limit", strconv.Itoa(ef.limit))
		}
		path := "/events"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		var resp types.EventsResponse
		if err := client().do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tEVENT\tTEXTURE\tFIELDS")
		for _, e := range resp.Events {
			fields, _ := json.Marshal(e.Fields)
			if len(e.Fields) == 0 {
				fields = nil
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", humanize.Time(time.UnixMilli(e.Time)), e.Name, e.Texture, fields)
		}
		return tw.Flush()
	}}
	eventsCmd.Flags().StringVar(&ef.name, "name", "", "Event name, e.g. stream_in")
	eventsCmd.Flags().StringVar(&ef.texture, "texture", "", "Texture name")
	eventsCmd.Flags().IntVar(&ef.limit, "limit", 0, "Maximum rows (server default 100)")
	eventsCmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	trackCmd := func(use, method, short string) *cobra.Command {
		return &cobra.Command{Use: use + " <name>", Short: short, Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
			var resp types.TrackResponse
			if err := client().do(cmd.Context(), method, "/textures/"+url.PathEscape(args[0])+"/track", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %q: changed %v\n", use, resp.Pattern, resp.Changed)
			return nil
		}}
	}

	var trackedLimit int
	trackedCmd := &cobra.Command{Use: "tracked", Short: "Show the last state of tracked textures", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		path := "/tracked"
		if trackedLimit > 0 {
			path += "?limit=" + strconv.Itoa(trackedLimit)
		}
		var resp types.TrackedResponse
		if err := client().do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "patterns: %s\n", strings.Join(resp.Patterns, ", "))
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tGROUP\tRESIDENT\tREQUESTED\tWANTED\tSTATE\tCHANGES\tCHANGED")
		for _, tt := range resp.Textures {
			state := tt.State
			if tt.Removed {
				state = "removed"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%d\t%s\n", tt.Name, tt.Group, tt.ResidentMips, tt.RequestedMips,
				tt.WantedMips, state, tt.Changes, humanize.Time(time.UnixMilli(tt.ChangedAt)))
		}
		return tw.Flush()
	}}
	trackedCmd.Flags().IntVar(&trackedLimit, "limit", 0, "Maximum rows")
	trackedCmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	groupsCmd := &cobra.Command{Use: "groups", Short: "Show memory use per LOD group", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.GroupsResponse
		if err := client().do(cmd.Context(), http.MethodGet, "/groups", nil, &resp); err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "GROUP\tTEXTURES\tRESIDENT\tWANTED\tMAX ALLOWED\tSTREAMED MIPS")
		for _, g := range resp.Groups {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\n", g.Group, g.NumTextures, ibytes(g.ResidentBytes),
				ibytes(g.WantedBytes), ibytes(g.MaxAllowedBytes), g.NumStreamedMips)
		}
		return tw.Flush()
	}}
	groupsCmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	var sf struct {
		lightmap, shadowmap, hidden float32
		mipBias                     int
		streamedMips                []string
	}
	settingsCmd := &cobra.Command{Use: "settings", Short: "Show or change runtime streaming settings", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		var req types.SettingsRequest
		flags := cmd.Flags()
		put := len(sf.streamedMips) > 0
		if flags.Changed("lightmap-factor") {
			req.LightmapStreamingFactor, put = &sf.lightmap, true
		}
		if flags.Changed("shadowmap-factor") {
			req.ShadowmapStreamingFactor, put = &sf.shadowmap, true
		}
		if flags.Changed("hidden-scale") {
			req.HiddenPrimitiveScale, put = &sf.hidden, true
		}
		if flags.Changed("mip-bias") {
			req.GlobalMipBias, put = &sf.mipBias, true
		}
		for _, kv := range sf.streamedMips {
			group, n, ok := strings.Cut(kv, "=")
			mips, err := strconv.Atoi(n)
			if !ok || err != nil {
				return errors.Errorf("invalid --streamed-mips %q: want group=n", kv)
			}
			if req.NumStreamedMips == nil {
				req.NumStreamedMips = map[string]int{}
			}
			req.NumStreamedMips[group] = mips
		}

		var resp types.SettingsResponse
		method, in := http.MethodGet, any(nil)
		if put {
			method, in = http.MethodPut, req
		}
		if err := client().do(cmd.Context(), method, "/settings", in, &resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	}}
	settingsCmd.Flags().Float32Var(&sf.lightmap, "lightmap-factor", 0, "Lightmap streaming factor")
	settingsCmd.Flags().Float32Var(&sf.shadowmap, "shadowmap-factor", 0, "Shadowmap streaming factor")
	settingsCmd.Flags().Float32Var(&sf.hidden, "hidden-scale", 0, "Screen size scale for hidden primitives, 0 to 1")
	settingsCmd.Flags().IntVar(&sf.mipBias, "mip-bias", 0, "Global mip bias")
	settingsCmd.Flags().StringSliceVar(&sf.streamedMips, "streamed-mips", nil, "Streamed mips per group, e.g. lightmap=4 (-1 streams all)")

	cancelCmd := func(use, path, short string) *cobra.Command {
		return &cobra.Command{Use: use, Short: short, Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
			var resp types.CancelResponse
			if err := client().do(cmd.Context(), http.MethodPost, path, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "canceled: %d\n", resp.Canceled)
			return nil
		}}
	}

	root.AddCommand(statusCmd, texturesCmd, investigateCmd, updateCmd, streamOutCmd,
		pauseCmd("pause", "/pause", "Pause texture streaming"),
		pauseCmd("resume", "/resume", "Resume texture streaming"),
		resetMaxCmd, blockCmd, levelsCmd, eventsCmd,
		trackCmd("track", http.MethodPost, "Log every change of textures whose name contains <name>"),
		trackCmd("untrack", http.MethodDelete, "Stop tracking <name>"),
		trackedCmd, groupsCmd, settingsCmd,
		cancelCmd("cancel-forced", "/cancel-forced", "Revoke timed forced residency"),
		cancelCmd("cancel-streaming", "/cancel-streaming", "Abort every resize in flight"))
}
