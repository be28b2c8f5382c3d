package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/blemu/internal/codec"
	"github.com/srg/blemu/internal/console"
	"github.com/srg/blemu/internal/gatt"
	"github.com/srg/blemu/internal/profile"
)

type encodedValue struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
	Hex   string `json:"hex"`
	Value string `json:"value"`
}

func newEncodeCmd() *cobra.Command {
	var (
		asJSON  bool
		txPower int8
	)

	cmd := &cobra.Command{
		Use:   "encode <profile> [set arguments...]",
		Short: "Print the wire bytes of a reading without touching Bluetooth",
		Long: `Builds a reading the same way the console "set" command does and prints the
bytes a central would receive. Without set arguments every characteristic of
the profile is printed with its initial value.

Flags go before the profile name; everything after it is passed to "set"
unchanged, so negative values need no quoting.`,
		Example: `  blemu encode battery 75
  blemu encode heart-rate bpm 300 contact detected rr 1024,512
  blemu encode thermometer unit f temp 98.6 type ear
  blemu encode thermometer temp -40
  blemu encode --tx=-60 proximity metadata on`,
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := profile.ParseKind(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			opts := cfg.ProfileOptions()
			if cmd.Flags().Changed("tx") {
				opts.TxPower = codec.FixedTxPower(txPower)
			}
			p, err := profile.New(kind, opts)
			if err != nil {
				return err
			}

			var readings []codec.Reading
			if len(args) > 1 {
				r, err := console.Edit(kind, p.Reading, args[1:])
				if err != nil {
					return err
				}
				readings = append(readings, r)
			} else {
				for _, c := range p.Service().Characteristics() {
					if r, ok := p.Reading(c.UUID()); ok {
						readings = append(readings, r)
					}
				}
			}

			values := make([]encodedValue, 0, len(readings))
			for _, r := range readings {
				data, err := codec.Encode(r, opts.TxPower)
				if err != nil {
					return err
				}
				uuid := codec.CharacteristicOf(r)
				values = append(values, encodedValue{
					UUID:  uuid,
					Name:  gatt.LookupCharacteristicName(uuid),
					Hex:   hex.EncodeToString(data),
					Value: r.String(),
				})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(values, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal values: %w", err)
				}
				_, _ = fmt.Fprintln(out, string(data))
				return nil
			}
			for _, v := range values {
				_, _ = fmt.Fprintf(out, "%s %-28s %s  %s\n", v.UUID, v.Name, v.Hex, v.Value)
			}
			return nil
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().Int8Var(&txPower, "tx", 0, "Fixed proximity transmit power in dBm instead of a random draw")
	return cmd
}
