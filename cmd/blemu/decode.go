package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/blemu/internal/codec"
	"github.com/srg/blemu/internal/gatt"
)

func newDecodeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "decode <characteristic-uuid> <hex>",
		Short: "Render a characteristic value received from a peripheral",
		Long: `Decodes the bytes of a known characteristic into readable form. UUIDs are
accepted in short (2a37) or full 128-bit form; hex may contain spaces, colons
or a 0x prefix.`,
		Example: `  blemu decode 2a37 "16 2c 01"
  blemu decode 2a1c fe440e00ff
  blemu decode 00002a19-0000-1000-8000-00805f9b34fb 0x4b`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uuid := gatt.NormalizeUUID(args[0])
			if uuid == "" {
				return fmt.Errorf("invalid UUID %q", args[0])
			}
			if !codec.IsParsableCharacteristic(uuid) {
				return fmt.Errorf("%w: %s", ErrUnknownCharacteristic, uuid)
			}
			data, err := parseHex(args[1])
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			parsed, err := codec.ParseCharacteristicValue(uuid, data)
			if err != nil {
				return fmt.Errorf("%s: %w", uuid, err)
			}

			v := encodedValue{
				UUID:  uuid,
				Name:  gatt.LookupCharacteristicName(uuid),
				Hex:   hex.EncodeToString(data),
				Value: parsed.String(),
			}
			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(v, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal value: %w", err)
				}
				_, _ = fmt.Fprintln(out, string(data))
				return nil
			}
			_, _ = fmt.Fprintf(out, "%s: %s\n", v.Name, v.Value)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("invalid hex value: empty")
	}
	return data, nil
}
