package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vbook-dev/vbook/internal/endpoint"
	"github.com/vbook-dev/vbook/internal/localaddr"
	"github.com/vbook-dev/vbook/internal/project"
	"github.com/vbook-dev/vbook/internal/statestore"
)

type DoctorCommand struct {
	Path    string `arg:"" optional:"" default:"." help:"Project directory or any file inside it"`
	AppURL  string `name:"app-url" help:"Runtime app address to check instead of the remembered one"`
	StateDB string `name:"state-db" help:"Path of the state database"`
	JSON    bool   `help:"Print doctor report as JSON"`
}

type checkStatus string

const (
	statusPass checkStatus = "pass"
	statusWarn checkStatus = "warn"
	statusFail checkStatus = "fail"
)

type doctorCheck struct {
	Name    string      `json:"name"`
	Status  checkStatus `json:"status"`
	Message string      `json:"message"`
}

var listCandidates = func(ctx *runtimeContext, targetHost string) ([]localaddr.Candidate, error) {
	r := localaddr.New(nil)
	r.PrefixOctets = ctx.Config.Resolver.PrefixOctets
	r.Weights = localaddr.Weights{Private: ctx.Config.Resolver.PrivateWeight, Prefix: ctx.Config.Resolver.PrefixWeight}
	return r.Candidates(targetHost)
}

func (d *DoctorCommand) Run(ctx *runtimeContext) error {
	checks := []doctorCheck{
		{Name: "runtime_config", Status: statusPass, Message: fmt.Sprintf("using runtime config path %s", ctx.ConfigPath)},
	}

	p, err := project.LoadForScript(resolvePath(ctx.CWD, d.Path))
	if err != nil {
		checks = append(checks, doctorCheck{Name: "project", Status: statusFail, Message: err.Error()})
	} else {
		checks = append(checks, doctorCheck{Name: "project", Status: statusPass, Message: fmt.Sprintf("%s (%s)", p.Descriptor.Metadata.Name, p.Dir)})
		if err := p.ValidateForBundle(); err != nil {
			checks = append(checks, doctorCheck{Name: "bundle", Status: statusWarn, Message: err.Error()})
		} else {
			checks = append(checks, doctorCheck{Name: "bundle", Status: statusPass, Message: "ready for install and build"})
		}
	}

	target, targetCheck := d.resolveTarget(ctx, p)
	checks = append(checks, targetCheck)

	var candidates []localaddr.Candidate
	if targetCheck.Status == statusPass {
		checks = append(checks, bridgePortCheck(target))
		var err error
		candidates, err = listCandidates(ctx, target.Host)
		if err == nil {
			var best localaddr.Candidate
			best, err = localaddr.Select(candidates)
			if err == nil {
				checks = append(checks, doctorCheck{
					Name:    "callback_address",
					Status:  statusPass,
					Message: fmt.Sprintf("%s on %s (score %d, %d candidates)", best.IP, best.Interface, best.Score, len(candidates)),
				})
			}
		}
		if err != nil {
			checks = append(checks, doctorCheck{Name: "callback_address", Status: statusFail, Message: err.Error()})
		}
	}

	if d.JSON {
		payload := map[string]any{
			"target":     target.String(),
			"checks":     checks,
			"candidates": candidates,
		}
		if targetCheck.Status != statusPass {
			payload["target"] = ""
		}
		enc := json.NewEncoder(ctx.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	title := "unknown"
	if targetCheck.Status == statusPass {
		title = target.String()
	}
	_, err = io.WriteString(ctx.Stdout, renderDoctorReport(title, checks, shouldUseANSI(ctx.Stdout)))
	return err
}

func (d *DoctorCommand) resolveTarget(ctx *runtimeContext, p *project.Project) (endpoint.Target, doctorCheck) {
	bg := context.Background()
	var store statestore.Store
	projectID := ""
	if p != nil {
		projectID = p.Identity()
		if s, err := openStore(bg, ctx, d.StateDB); err == nil {
			store = s
			defer store.Close()
		}
	}
	raw, source := knownTarget(bg, store, ctx.Config, projectID, d.AppURL)
	if raw == "" {
		return endpoint.Target{}, doctorCheck{Name: "runtime_app", Status: statusWarn, Message: "no runtime app address known; pass --app-url"}
	}
	target, err := endpoint.Parse(raw)
	if err != nil {
		return endpoint.Target{}, doctorCheck{Name: "runtime_app", Status: statusFail, Message: err.Error()}
	}
	return target, doctorCheck{Name: "runtime_app", Status: statusPass, Message: fmt.Sprintf("%s (%s)", target.String(), source)}
}

func bridgePortCheck(target endpoint.Target) doctorCheck {
	port, err := target.BridgePort()
	if err != nil {
		return doctorCheck{Name: "bridge_port", Status: statusFail, Message: err.Error()}
	}
	return doctorCheck{Name: "bridge_port", Status: statusPass, Message: fmt.Sprintf("file bridge will listen on 0.0.0.0:%d", port)}
}
