package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/perbench/internal/hexcodec"
	"github.com/srg/perbench/internal/params"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address>",
	Short: "Read back the DTM parameter characteristic",
	Long: fmt.Sprintf(`Connects to a DTM peripheral, reads its parameter characteristic and
prints the raw message and, when it is a parameter message, its fields.

Examples:
  perbench read %s
  perbench read %s --hex

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

var readHex bool

func init() {
	addReadFlags()
}

func addReadFlags() {
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Print only the hex message")
}

func runRead(cmd *cobra.Command, args []string) error {
	s, cfg, _, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	cmd.SilenceUsage = true

	ctx, cancel := interruptible(cmd, cmd.Context(), "read")
	defer cancel()

	address, err := connect(ctx, cmd, s, cfg, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = s.Disconnect(ctx) }()

	res, err := s.Machine().ReadCharacteristic(ctx, params.ServiceUUID, params.CharacteristicUUID)
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	msg := hexcodec.BytesToHex(res.Value)
	if readHex {
		fmt.Fprintln(out, msg)
		return nil
	}

	p, err := params.Decode(res.Value)
	if err != nil {
		fmt.Fprintf(out, "Message:  %s\n", msg)
		fmt.Fprintf(out, "(not a parameter message: %v)\n", err)
		return nil
	}
	fmt.Fprintf(out, "Device:   %s (MTU %d)\n", address, s.Machine().MTU())
	return printParams(out, p, msg)
}
