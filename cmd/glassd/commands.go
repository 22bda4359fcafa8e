package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/google/uuid"

	"github.com/loykin/glassd"
	"github.com/loykin/glassd/internal/config"
	"github.com/loykin/glassd/internal/logger"
	"github.com/loykin/glassd/internal/overlay"
	"github.com/loykin/glassd/internal/profile"
	"github.com/loykin/glassd/internal/store"
	sfactory "github.com/loykin/glassd/internal/store/factory"
	"github.com/loykin/glassd/pkg/client"
)

type command struct {
	global *GlobalFlags
	out    io.Writer
	errOut io.Writer
	// onServing is called with the bound API address once serve is ready.
	onServing func(addr string)
}

func newCommand(global *GlobalFlags) *command {
	return &command{global: global, out: os.Stdout, errOut: os.Stderr}
}

func (c *command) loadConfig() (*glassd.Config, error) {
	cfg, err := glassd.LoadConfig(c.global.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// localLogger keeps one-shot commands quiet unless something goes wrong.
func (c *command) localLogger(cfg *glassd.Config) *slog.Logger {
	lc := cfg.Log
	if lc.Level == "" || strings.EqualFold(lc.Level, "info") {
		lc.Level = "warn"
	}
	lc.File.Path = ""
	l, _ := logger.New(lc, c.errOut)
	return l
}

func (c *command) apiClient(ctx context.Context) (*client.Client, error) {
	apiURL := c.global.APIUrl
	if apiURL == "" {
		apiURL = client.DefaultConfig().BaseURL
	}
	api := client.New(client.Config{BaseURL: apiURL, Timeout: c.global.APITimeout})
	if !api.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'glassd serve'", apiURL)
	}
	return api, nil
}

func (c *command) openStore(ctx context.Context) (store.Store, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	dsn := cfg.StoreDSN()
	if dsn == "" {
		return nil, overlay.ErrNoTagStore
	}
	return sfactory.Open(ctx, dsn)
}

// NotifyStarting reports an entity start to the daemon.
func (c *command) NotifyStarting(ctx context.Context, f NotifyFlags) error {
	if f.EntityID == "" {
		return fmt.Errorf("notify starting requires --entity")
	}
	api, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	res, err := api.EntityStarting(ctx, f.EntityID, f.Tags)
	if err != nil {
		return err
	}
	if !res.Launched {
		_, _ = fmt.Fprintf(c.out, "No overlay launched for %s: %s\n", f.EntityID, res.Reason)
		return nil
	}
	printJSON(c.out, res.Overlay)
	return nil
}

// NotifyStopped reports an entity stop to the daemon.
func (c *command) NotifyStopped(ctx context.Context, f NotifyFlags) error {
	if f.EntityID == "" {
		return fmt.Errorf("notify stopped requires --entity")
	}
	api, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	if err := api.EntityStopped(ctx, f.EntityID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "Stopped overlay for %s\n", f.EntityID)
	return nil
}

// Refresh syncs profile tags, through the daemon when --api-url is set and
// against the configured store otherwise.
func (c *command) Refresh(ctx context.Context) error {
	if c.global.APIUrl != "" {
		api, err := c.apiClient(ctx)
		if err != nil {
			return err
		}
		res, err := api.RefreshProfiles(ctx)
		if res.Message != "" {
			_, _ = fmt.Fprintln(c.out, "Profiles refreshed: "+res.Message)
		}
		return err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	d, err := glassd.Open(ctx, cfg, c.localLogger(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(c.errOut))
	spin.Suffix = " Refreshing profiles..."
	spin.Start()
	sum, err := d.Reconcile(ctx, func(cur, total int, status string) {
		spin.Lock()
		spin.Suffix = fmt.Sprintf(" %d/%d %s", cur, total, status)
		spin.Unlock()
	})
	spin.Stop()
	_, _ = fmt.Fprintln(c.out, "Profiles refreshed: "+sum.String())
	return err
}

// Status prints the overlays known to the daemon.
func (c *command) Status(ctx context.Context, f StatusFlags) error {
	api, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	if f.EntityID != "" {
		st, err := api.Overlay(ctx, f.EntityID)
		if err != nil {
			return err
		}
		printJSON(c.out, st)
		return nil
	}
	sts, err := api.Overlays(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, sts)
	return nil
}

// Verify checks the overlay executable and profiles directory settings.
func (c *command) Verify() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Verify(); err != nil {
		return fmt.Errorf("settings are incomplete:\n%w", err)
	}
	_, _ = fmt.Fprintln(c.out, "Settings OK")
	return nil
}

// ProfilesList prints the profiles directory with ignored flags.
func (c *command) ProfilesList() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	es, err := profile.List(cfg.ProfilesDir, cfg.IgnoredProfiles)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROFILE\tFILE\tIGNORED")
	for _, e := range es {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\n", e.Name, e.FileName, e.Ignored)
	}
	return tw.Flush()
}

// ProfilesIgnore adds or removes name from the ignored list in the config file.
func (c *command) ProfilesIgnore(name string, ignore bool) error {
	if c.global.ConfigPath == "" {
		return fmt.Errorf("--config is required to persist ignored profiles")
	}
	update := config.Unignore
	if ignore {
		update = config.Ignore
	}
	names, err := update(c.global.ConfigPath, name)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "Ignored profiles: %s\n", strings.Join(names, ", "))
	_, _ = fmt.Fprintln(c.out, "Run 'glassd refresh' to apply the change to tags.")
	return nil
}

// TagsList prints tags from the store, optionally those of one entity.
func (c *command) TagsList(ctx context.Context, f TagFlags) error {
	s, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	var tags []store.Tag
	if f.EntityID != "" {
		tags, err = s.EntityTags(ctx, f.EntityID)
	} else {
		tags, err = s.ListTags(ctx, f.Prefix)
	}
	if err != nil {
		return err
	}
	for _, t := range tags {
		_, _ = fmt.Fprintf(c.out, "%d\t%s\n", t.ID, t.Name)
	}
	return nil
}

// TagsAssign attaches a tag to an entity, creating the tag when needed.
func (c *command) TagsAssign(ctx context.Context, f TagFlags, name string) error {
	if f.EntityID == "" {
		return fmt.Errorf("tags assign requires --entity")
	}
	s, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	t, err := s.TagByName(ctx, name)
	if errors.Is(err, store.ErrTagNotFound) {
		t, err = s.CreateTag(ctx, name)
	}
	if err != nil {
		return err
	}
	if err := s.AssignTag(ctx, f.EntityID, t.ID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "Assigned %q to %s\n", t.Name, f.EntityID)
	return nil
}

// TagsUnassign detaches a tag from an entity.
func (c *command) TagsUnassign(ctx context.Context, f TagFlags, name string) error {
	if f.EntityID == "" {
		return fmt.Errorf("tags unassign requires --entity")
	}
	s, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	t, err := s.TagByName(ctx, name)
	if err != nil {
		return err
	}
	if err := s.UnassignTag(ctx, f.EntityID, t.ID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "Unassigned %q from %s\n", t.Name, f.EntityID)
	return nil
}

// Run launches the overlay selected by the tags, runs argv and stops the
// overlay once argv exits. A failed launch does not prevent argv from running.
func (c *command) Run(ctx context.Context, f RunFlags, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("run requires a command after --")
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	l := c.localLogger(cfg)
	d, err := glassd.Open(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	id := f.EntityID
	if id == "" {
		id = uuid.NewString()
	}
	tags := f.Tags
	if len(tags) == 0 && f.EntityID != "" && d.Tags() != nil {
		ts, err := d.Tags().EntityTags(ctx, id)
		if err != nil {
			return err
		}
		tags = store.Names(ts)
	}

	if _, err := d.Manager().StartEntity(ctx, id, tags); err != nil && !errors.Is(err, overlay.ErrNoProfile) {
		_, _ = fmt.Fprintf(c.errOut, "overlay not started: %v\n", err)
	}
	defer func() { _ = d.Manager().Stop(id) }()

	// #nosec 204
	game := exec.CommandContext(ctx, argv[0], argv[1:]...)
	game.Stdin, game.Stdout, game.Stderr = os.Stdin, c.out, c.errOut
	return game.Run()
}
