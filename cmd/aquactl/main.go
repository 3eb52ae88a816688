package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"aquadeck/internal/apiclient"
	"aquadeck/internal/journal"
	"aquadeck/internal/logging"
	"aquadeck/internal/model"
	"aquadeck/internal/schedule"
	"aquadeck/internal/store"
)

func main() {
	var serverURL, address, days, sunrise, sunset, journalPath string
	var brightness, color, rampUp, head, volume, hour, minute, limit int
	var scanTimeout, cmdTimeout time.Duration
	flag.StringVar(&serverURL, "server", "http://127.0.0.1:8000", "Base URL of the device service")
	flag.StringVar(&address, "address", "", "Device address for device commands")
	flag.IntVar(&brightness, "brightness", 100, "Brightness percent for set-brightness and add-auto-setting")
	flag.IntVar(&color, "color", 0, "Color channel index for set-brightness")
	flag.StringVar(&days, "days", "", "Comma-separated weekdays (mon,tue,... or 0-6), empty for every day")
	flag.StringVar(&sunrise, "sunrise", "", "Sunrise time HH:MM for add-auto-setting")
	flag.StringVar(&sunset, "sunset", "", "Sunset time HH:MM for add-auto-setting")
	flag.IntVar(&rampUp, "ramp-up", 0, "Ramp-up minutes for add-auto-setting")
	flag.IntVar(&head, "head", 0, "Doser head index for set-schedule")
	flag.IntVar(&volume, "volume-tenths", 0, "Dose volume in tenths of a ml for set-schedule")
	flag.IntVar(&hour, "hour", 0, "Dose hour for set-schedule")
	flag.IntVar(&minute, "minute", 0, "Dose minute for set-schedule")
	flag.IntVar(&limit, "limit", 20, "Maximum records for history")
	flag.DurationVar(&scanTimeout, "scan-timeout", 5*time.Second, "How long to scan for devices")
	flag.DurationVar(&cmdTimeout, "timeout", 0, "Per-command timeout override (1-30s)")
	flag.StringVar(&journalPath, "journal", "", "Path to a local command journal, used as history fallback")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	verb := flag.Arg(0)
	if *help || verb == "" {
		usage()
		os.Exit(0)
	}

	// Keep log noise out of table output.
	logging.Init(zerolog.WarnLevel, "")

	client := apiclient.New(serverURL)
	opts := []store.Option{store.WithoutAutoDrain()}
	if journalPath != "" {
		jnl, err := journal.Open(journalPath)
		if err != nil {
			fmt.Printf("Error: could not open journal: %v\n", err)
			os.Exit(1)
		}
		defer jnl.Close()
		opts = append(opts, store.WithJournal(jnl))
	}
	st := store.New(client, opts...)
	ctx := context.Background()

	var err error
	switch verb {
	case "status":
		err = printStatus(ctx, st)
	case "scan":
		err = printScan(ctx, st, scanTimeout)
	case "connect":
		err = withAddress(address, func() error { return st.ConnectDevice(ctx, address) })
	case "disconnect":
		err = withAddress(address, func() error { return st.DisconnectDevice(ctx, address) })
	case "refresh":
		err = withAddress(address, func() error { return st.RefreshDevice(ctx, address) })
	case "turn-on":
		err = runCommand(ctx, st, address, model.TurnOn(), cmdTimeout)
	case "turn-off":
		err = runCommand(ctx, st, address, model.TurnOff(), cmdTimeout)
	case "set-brightness":
		err = runCommand(ctx, st, address, model.SetBrightness(brightness, color), cmdTimeout)
	case "enable-auto":
		err = runCommand(ctx, st, address, model.EnableAutoMode(), cmdTimeout)
	case "manual-mode":
		err = runCommand(ctx, st, address, model.SetManualMode(), cmdTimeout)
	case "reset-auto":
		err = runCommand(ctx, st, address, model.ResetAutoSettings(), cmdTimeout)
	case "add-auto-setting":
		var weekdays []model.Weekday
		weekdays, err = parseDays(days)
		if err == nil {
			err = runCommand(ctx, st, address,
				model.AddAutoSetting(sunrise, sunset, brightness, rampUp, weekdays), cmdTimeout)
		}
	case "set-schedule":
		var weekdays []model.Weekday
		weekdays, err = parseDays(days)
		if err == nil {
			err = runCommand(ctx, st, address,
				model.SetSchedule(head, volume, hour, minute, weekdays), cmdTimeout)
		}
	case "history":
		err = printHistory(ctx, st, address, limit)
	case "schedules":
		err = printSchedules(ctx, st, address)
	default:
		fmt.Printf("Invalid command %q\n", verb)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", verb, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("\nUsage of aquactl:")
	fmt.Println("  aquactl [flags] <command>")
	fmt.Println("\nCommands:")
	fmt.Println("  status\t\tList every tracked device")
	fmt.Println("  scan\t\t\tDiscover nearby devices")
	fmt.Println("  connect\t\tConnect to a device (-address)")
	fmt.Println("  disconnect\t\tDisconnect from a device (-address)")
	fmt.Println("  refresh\t\tRe-read a device's live status (-address)")
	fmt.Println("  turn-on\t\tTurn a light on (-address)")
	fmt.Println("  turn-off\t\tTurn a light off (-address)")
	fmt.Println("  set-brightness\tSet light brightness (-address -brightness -color)")
	fmt.Println("  enable-auto\t\tSwitch a light to auto mode (-address)")
	fmt.Println("  manual-mode\t\tSwitch a light to manual mode (-address)")
	fmt.Println("  reset-auto\t\tClear all auto settings (-address)")
	fmt.Println("  add-auto-setting\tAdd an auto window (-address -sunrise -sunset -brightness -ramp-up -days)")
	fmt.Println("  set-schedule\t\tProgram a doser head (-address -head -volume-tenths -hour -minute -days)")
	fmt.Println("  history\t\tShow recent commands (-address -limit)")
	fmt.Println("  schedules\t\tClassify a device's auto programs (-address)")
	fmt.Println("\nRun 'aquactl -help' for all flags.")
}

func withAddress(address string, fn func() error) error {
	if address == "" {
		return fmt.Errorf("-address is required")
	}
	return fn()
}

// runCommand queues one command and drains the queue synchronously, so the
// process observes the same validation, journaling, and error mapping the
// daemon applies.
func runCommand(ctx context.Context, st *store.Store, address string, req model.CommandRequest, timeout time.Duration) error {
	if address == "" {
		return fmt.Errorf("-address is required")
	}
	if timeout > 0 {
		req.Timeout = timeout.Seconds()
	}

	if err := st.RefreshDevices(ctx); err != nil {
		return err
	}
	id, err := st.QueueCommand(address, req)
	if err != nil {
		return err
	}
	st.ProcessQueue(ctx)

	if rec, ok := st.Device(address); ok && rec.Error != "" {
		return fmt.Errorf("%s", rec.Error)
	}
	fmt.Printf("Command %s (%s) completed successfully\n", req.Action, id)
	return nil
}

func printStatus(ctx context.Context, st *store.Store) error {
	if err := st.RefreshDevices(ctx); err != nil {
		return err
	}
	devices := st.Devices()
	if len(devices) == 0 {
		fmt.Println("No devices tracked")
		return nil
	}
	fmt.Printf("%-20s %-8s %-10s %s\n", "ADDRESS", "TYPE", "CONNECTED", "MODEL")
	for _, rec := range devices {
		devType, modelName := "unknown", ""
		if rec.Status != nil {
			devType = string(rec.Status.DeviceType)
			modelName = rec.Status.ModelName
		}
		fmt.Printf("%-20s %-8s %-10t %s\n", rec.Address, devType, rec.Connected(), modelName)
	}
	return nil
}

func printScan(ctx context.Context, st *store.Store, timeout time.Duration) error {
	fmt.Printf("Scanning for %s...\n", timeout)
	found, err := st.Scan(ctx, timeout)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("No devices found")
		return nil
	}
	fmt.Printf("%-20s %-8s %s\n", "ADDRESS", "TYPE", "MODEL")
	for _, status := range found {
		fmt.Printf("%-20s %-8s %s\n", status.Address, status.DeviceType, status.ModelName)
	}
	return nil
}

func printHistory(ctx context.Context, st *store.Store, address string, limit int) error {
	if address == "" {
		return fmt.Errorf("-address is required")
	}
	recs, err := st.CommandHistory(ctx, address, limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No command history")
		return nil
	}
	fmt.Printf("%-36s %-18s %-10s %s\n", "ID", "ACTION", "STATUS", "ERROR")
	for _, rec := range recs {
		fmt.Printf("%-36s %-18s %-10s %s\n", rec.ID, rec.Action, rec.Status, rec.Error)
	}
	return nil
}

func printSchedules(ctx context.Context, st *store.Store, address string) error {
	if address == "" {
		return fmt.Errorf("-address is required")
	}
	if err := st.RefreshDevices(ctx); err != nil {
		return err
	}
	conf, err := st.Configuration(ctx, address)
	if err != nil {
		return err
	}
	entries := schedule.SchedulesInOrder(conf.AutoPrograms, time.Now())
	if len(entries) == 0 {
		fmt.Println("No auto programs configured")
		return nil
	}
	fmt.Printf("%-10s %-20s %-12s %s\n", "STATUS", "LABEL", "WINDOW", "NEXT")
	for _, e := range entries {
		next := "-"
		if e.Next != nil {
			next = e.Next.String()
		}
		label := e.Program.Label
		if label == "" {
			label = e.Program.ID
		}
		window := e.Program.Sunrise + "-" + e.Program.Sunset
		fmt.Printf("%-10s %-20s %-12s %s\n", e.Status, label, window, next)
	}
	return nil
}

// parseDays splits a comma-separated weekday list. Empty input means every
// day, matching how the firmware treats an absent weekday mask.
func parseDays(s string) ([]model.Weekday, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []model.Weekday
	for _, part := range strings.Split(s, ",") {
		day, err := model.ParseWeekday(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, day)
	}
	return out, nil
}
