package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/trailmark/internal/core"
	"github.com/runnerr0/trailmark/internal/policy"
)

type settingJSON struct {
	Origin    string            `json:"origin"`
	Decisions map[string]string `json:"decisions"`
}

func toSettingJSON(s policy.Setting) settingJSON {
	out := settingJSON{Origin: s.Origin, Decisions: make(map[string]string)}
	for _, k := range policy.Kinds() {
		out.Decisions[k.String()] = s.Get(k).String()
	}
	return out
}

func printSetting(s policy.Setting) {
	fmt.Println(s.Origin)
	for _, k := range policy.Kinds() {
		fmt.Printf("  %-14s %s\n", k, s.Get(k))
	}
}

// Execute implements the go-flags Commander interface for PolicyGetCommand.
func (c *PolicyGetCommand) Execute(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: policy get <uri>")
	}
	return withHandle(c.globals, func(ctx context.Context, h *core.Handle) error {
		return c.executeWith(ctx, h, args[0])
	})
}

func (c *PolicyGetCommand) executeWith(ctx context.Context, h *core.Handle, uri string) error {
	s, err := h.Policies().GetOrDefault(ctx, uri)
	if err != nil {
		return fmt.Errorf("get policy: %w", err)
	}
	if c.globals.JSON {
		return printJSON(toSettingJSON(s))
	}
	printSetting(s)
	return nil
}

// Execute implements the go-flags Commander interface for PolicySetCommand.
func (c *PolicySetCommand) Execute(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: policy set <uri> <kind> <ask|allow|deny>")
	}
	return withHandle(c.globals, func(ctx context.Context, h *core.Handle) error {
		return c.executeWith(ctx, h, args[0], args[1], args[2])
	})
}

func (c *PolicySetCommand) executeWith(ctx context.Context, h *core.Handle, uri, kindName, decisionName string) error {
	kind, err := policy.ParseKind(kindName)
	if err != nil {
		return err
	}
	d, err := policy.ParseDecision(decisionName)
	if err != nil {
		return err
	}
	if err := h.Policies().Set(ctx, uri, kind, d); err != nil {
		return fmt.Errorf("set policy: %w", err)
	}

	s, err := h.Policies().GetOrDefault(ctx, uri)
	if err != nil {
		return fmt.Errorf("get policy: %w", err)
	}
	if c.globals.JSON {
		return printJSON(toSettingJSON(s))
	}
	fmt.Printf("%s %s: %s\n", s.Origin, kind, d)
	return nil
}

// Execute implements the go-flags Commander interface for PolicyDeleteCommand.
func (c *PolicyDeleteCommand) Execute(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: policy delete <uri>")
	}
	return withHandle(c.globals, func(ctx context.Context, h *core.Handle) error {
		return c.executeWith(ctx, h, args[0])
	})
}

func (c *PolicyDeleteCommand) executeWith(ctx context.Context, h *core.Handle, uri string) error {
	removed, err := h.Policies().Delete(ctx, uri)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if c.globals.JSON {
		return printJSON(map[string]bool{"deleted": removed})
	}
	if removed {
		fmt.Println("Deleted stored decisions; every permission will ask.")
	} else {
		fmt.Println("No decisions stored for that origin.")
	}
	return nil
}

// Execute implements the go-flags Commander interface for PolicyListCommand.
func (c *PolicyListCommand) Execute(args []string) error {
	return withHandle(c.globals, c.executeWith)
}

func (c *PolicyListCommand) executeWith(ctx context.Context, h *core.Handle) error {
	settings, err := h.Policies().List(ctx)
	if err != nil {
		return fmt.Errorf("list policies: %w", err)
	}
	if c.globals.JSON {
		out := make([]settingJSON, len(settings))
		for i, s := range settings {
			out[i] = toSettingJSON(s)
		}
		return printJSON(out)
	}
	if len(settings) == 0 {
		fmt.Println("No stored permission decisions.")
		return nil
	}
	for i, s := range settings {
		if i > 0 {
			fmt.Println()
		}
		printSetting(s)
	}
	return nil
}
