package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/blemu/internal/profile"
)

type characteristicInfo struct {
	UUID       string `json:"uuid"`
	Name       string `json:"name"`
	Properties string `json:"properties"`
	Hex        string `json:"hex"`
	Value      string `json:"value"`
}

type profileInfo struct {
	Name            string               `json:"name"`
	Service         string               `json:"service"`
	ServiceName     string               `json:"service_name"`
	Characteristics []characteristicInfo `json:"characteristics"`
}

func newProfilesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the emulated profiles and their attribute tables",
		Long: `Lists every profile with its primary service, characteristics, properties and
the initial value each characteristic is served with. Initial values come from
the configuration file when --config is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			infos, err := describeProfiles(cfg.ProfileOptions())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(infos, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal profiles: %w", err)
				}
				_, _ = fmt.Fprintln(out, string(data))
				return nil
			}

			for i, p := range infos {
				if i > 0 {
					_, _ = fmt.Fprintln(out)
				}
				_, _ = fmt.Fprintf(out, "%-12s %s %s\n", p.Name, p.Service, p.ServiceName)
				for _, c := range p.Characteristics {
					_, _ = fmt.Fprintf(out, "  %s %-28s [%s] %s\n", c.UUID, c.Name, c.Properties, c.Value)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func describeProfiles(opts profile.Options) ([]profileInfo, error) {
	infos := make([]profileInfo, 0, len(profile.Kinds()))
	for _, kind := range profile.Kinds() {
		p, err := profile.New(kind, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		svc := p.Service()
		info := profileInfo{
			Name:        kind.String(),
			Service:     svc.UUID(),
			ServiceName: svc.KnownName(),
		}
		for _, c := range svc.Characteristics() {
			ci := characteristicInfo{
				UUID:       c.UUID(),
				Name:       c.KnownName(),
				Properties: c.Properties().String(),
			}
			if value, ok := p.Value(c.UUID()); ok {
				ci.Hex = hex.EncodeToString(value)
			}
			if r, ok := p.Reading(c.UUID()); ok {
				ci.Value = r.String()
			}
			info.Characteristics = append(info.Characteristics, ci)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
