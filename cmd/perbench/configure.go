package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/perbench/internal/params"
)

// configureCmd represents the configure command
var configureCmd = &cobra.Command{
	Use:   "configure <device-address>",
	Short: "Write DTM test parameters to a peripheral",
	Long: fmt.Sprintf(`Connects to a DTM peripheral and writes its test parameters.

Unset flags keep the last parameters written successfully. An RX
configuration starts from the last TX channel and PHY so the receiver
listens where the transmitter sends.

Channels are RF channel indices 0-39 (2402 MHz + 2 MHz * index).

Examples:
  # Transmit on 2426 MHz at +4 dBm
  perbench configure %s --mode tx --channel 12 --power 4

  # Configure the receiver for the same run
  perbench configure %s --mode rx --packets 1500

  # Show the message without connecting
  perbench configure %s --mode tx --channel 12 --dry-run

  # Send a raw parameter message
  perbench configure %s --message "00 04 0c 25 00 01 00 00 00 dc 05"

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runConfigure,
}

var (
	configureMode      string
	configurePower     int
	configureChannel   int
	configureLength    int
	configurePayload   int
	configurePhy       int
	configureRxChannel int
	configureRxPhy     int
	configureModIndex  int
	configurePackets   int
	configureDryRun    bool
	configureMessage   string
)

func init() {
	addConfigureFlags()
}

func addConfigureFlags() {
	configureCmd.Flags().StringVar(&configureMode, "mode", "tx", "Test mode (tx, rx)")
	configureCmd.Flags().IntVar(&configurePower, "power", 0, "TX power in dBm")
	configureCmd.Flags().IntVar(&configureChannel, "channel", 0, "TX RF channel index (0-39)")
	configureCmd.Flags().IntVar(&configureLength, "length", 37, "Test packet data length (0-255)")
	configureCmd.Flags().IntVar(&configurePayload, "payload", 0, "Payload pattern code")
	configureCmd.Flags().IntVar(&configurePhy, "phy", 1, "TX PHY code")
	configureCmd.Flags().IntVar(&configureRxChannel, "rx-channel", 0, "RX RF channel index (0-39); default follows the TX channel")
	configureCmd.Flags().IntVar(&configureRxPhy, "rx-phy", 1, "RX PHY code; default follows the TX PHY")
	configureCmd.Flags().IntVar(&configureModIndex, "mod-index", 0, "Modulation index code (RX only)")
	configureCmd.Flags().IntVar(&configurePackets, "packets", 1500, "Number of test packets (0-65535)")
	configureCmd.Flags().BoolVar(&configureDryRun, "dry-run", false, "Print the parameter message without connecting")
	configureCmd.Flags().StringVar(&configureMessage, "message", "", "Raw hex parameter message; overrides every field flag")
}

// buildParams overlays the flags the user set on the remembered parameters.
func buildParams(cmd *cobra.Command, saved params.Params) (params.Params, error) {
	if cmd.Flags().Changed("message") {
		return params.ParseMessage(configureMessage)
	}
	mode, err := params.ParseMode(configureMode)
	if err != nil {
		return params.Params{}, err
	}
	p := saved
	if mode == params.ModeRX {
		p = params.ForRX(saved)
	}
	p.Mode = mode

	flags := cmd.Flags()
	for name, apply := range map[string]func(){
		"power":      func() { p.TxPower = configurePower },
		"channel":    func() { p.TxChannel = configureChannel },
		"length":     func() { p.DataLength = configureLength },
		"payload":    func() { p.PayloadCode = configurePayload },
		"phy":        func() { p.TxPhyCode = configurePhy },
		"rx-channel": func() { p.RxChannel = configureRxChannel },
		"rx-phy":     func() { p.RxPhyCode = configureRxPhy },
		"mod-index":  func() { p.ModulationIndex = configureModIndex },
		"packets":    func() { p.PacketCount = configurePackets },
	} {
		if flags.Changed(name) {
			apply()
		}
	}
	if err := p.Validate(); err != nil {
		return params.Params{}, err
	}
	return p, nil
}

func runConfigure(cmd *cobra.Command, args []string) error {
	s, cfg, _, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	saved, err := s.LastParams()
	if err != nil {
		return err
	}
	p, err := buildParams(cmd, saved)
	if err != nil {
		return err
	}
	msg, err := p.Encode()
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	if configureDryRun {
		return printParams(out, p, msg)
	}

	ctx, cancel := interruptible(cmd, cmd.Context(), "configure")
	defer cancel()

	address, err := connect(ctx, cmd, s, cfg, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = s.Disconnect(ctx) }()

	res, err := s.WriteParams(ctx, p)
	if err != nil {
		return err
	}
	if err := printParams(out, p, msg); err != nil {
		return err
	}
	if !res.OK() {
		color.New(color.FgRed).Fprintf(out, "✗ %s rejected the parameters (status %s)\n", address, res.Status)
		return res.Err()
	}
	color.New(color.FgGreen).Fprintf(out, "✓ Parameters written to %s\n", address)
	return nil
}

func printParams(out io.Writer, p params.Params, msg string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Mode:\t%s\n", p.Mode)
	fmt.Fprintf(w, "TX power:\t%d dBm\n", p.TxPower)
	fmt.Fprintf(w, "TX channel:\t%s\n", params.ChannelLabel(p.TxChannel))
	fmt.Fprintf(w, "Data length:\t%d\n", p.DataLength)
	fmt.Fprintf(w, "Payload:\t%d\n", p.PayloadCode)
	fmt.Fprintf(w, "TX PHY:\t%d\n", p.TxPhyCode)
	if p.Mode == params.ModeRX {
		fmt.Fprintf(w, "RX channel:\t%s\n", params.ChannelLabel(p.RxChannel))
		fmt.Fprintf(w, "RX PHY:\t%d\n", p.RxPhyCode)
		fmt.Fprintf(w, "Modulation index:\t%d\n", p.ModulationIndex)
	}
	fmt.Fprintf(w, "Packets:\t%d\n", p.PacketCount)
	fmt.Fprintf(w, "Message:\t%s\n", msg)
	return w.Flush()
}
