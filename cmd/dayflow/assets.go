package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dayflow/dayflow/internal/remote"

	"github.com/spf13/cobra"
)

var (
	fileFlag        string
	displayNameFlag string
	handleFlag      string
	promptFlag      string
	startFlag       string
	endFlag         string
	fpsFlag         float64
	waitFlag        bool
	modelFlag       string
)

var uploadAssetCmd = &cobra.Command{
	Use:   "upload-asset",
	Short: "Upload a file to Gemini and print its handle",
	RunE:  runUploadAsset,
}

var listAssetsCmd = &cobra.Command{
	Use:   "list-assets",
	Short: "List uploaded files",
	RunE:  runListAssets,
}

var getAssetCmd = &cobra.Command{
	Use:   "get-asset",
	Short: "Show the current state of an uploaded file",
	RunE:  runGetAsset,
}

var analyzeAssetCmd = &cobra.Command{
	Use:   "analyze-asset",
	Short: "Run the model over an uploaded video",
	Long: `Asks the model about an uploaded video. Offsets accept seconds ("90", "90s",
"1.5"), MM:SS or HH:MM:SS. Without --wait a file that is still processing is
reported as pending; check it again with get-asset.`,
	RunE: runAnalyzeAsset,
}

func init() {
	uploadAssetCmd.Flags().StringVar(&fileFlag, "file", "", "File to upload")
	uploadAssetCmd.Flags().StringVar(&displayNameFlag, "display-name", "", "Display name (default: file name)")
	uploadAssetCmd.MarkFlagRequired("file")

	getAssetCmd.Flags().StringVar(&handleFlag, "handle", "", "File handle, e.g. files/abc123")
	getAssetCmd.MarkFlagRequired("handle")

	analyzeAssetCmd.Flags().StringVar(&handleFlag, "handle", "", "File handle, e.g. files/abc123")
	analyzeAssetCmd.Flags().StringVar(&promptFlag, "prompt", "", "Question for the model")
	analyzeAssetCmd.Flags().StringVar(&startFlag, "start", "", "Start offset")
	analyzeAssetCmd.Flags().StringVar(&endFlag, "end", "", "End offset")
	analyzeAssetCmd.Flags().Float64Var(&fpsFlag, "fps", 0, "Frames per second sampled by the model (0 = service default)")
	analyzeAssetCmd.Flags().BoolVar(&waitFlag, "wait", false, "Wait for the file to become ready")
	analyzeAssetCmd.Flags().StringVar(&modelFlag, "model", "", "Gemini model (default from DAYFLOW_MODEL)")
	analyzeAssetCmd.MarkFlagRequired("handle")
	analyzeAssetCmd.MarkFlagRequired("prompt")

	rootCmd.AddCommand(uploadAssetCmd, listAssetsCmd, getAssetCmd, analyzeAssetCmd)
}

// remoteProcessor loads configuration and returns a processor bound to a
// context cancelled by SIGINT/SIGTERM.
func remoteProcessor() (context.Context, context.CancelFunc, *remote.Processor, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	proc, err := newProcessor(ctx, cfg)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return ctx, stop, proc, nil
}

func runUploadAsset(cmd *cobra.Command, args []string) error {
	ctx, stop, proc, err := remoteProcessor()
	if err != nil {
		return err
	}
	defer stop()

	h, err := proc.Upload(ctx, fileFlag, displayNameFlag)
	if err != nil {
		return err
	}
	fmt.Println(h.JSON())
	return nil
}

func runListAssets(cmd *cobra.Command, args []string) error {
	ctx, stop, proc, err := remoteProcessor()
	if err != nil {
		return err
	}
	defer stop()

	handles, err := proc.List(ctx)
	if err != nil {
		return err
	}
	fmt.Println(remote.HandlesJSON(handles))
	return nil
}

func runGetAsset(cmd *cobra.Command, args []string) error {
	ctx, stop, proc, err := remoteProcessor()
	if err != nil {
		return err
	}
	defer stop()

	h, err := proc.Get(ctx, handleFlag)
	if err != nil {
		return err
	}
	fmt.Println(h.JSON())
	return nil
}

func runAnalyzeAsset(cmd *cobra.Command, args []string) error {
	req, err := analyzeRequest()
	if err != nil {
		return err
	}

	ctx, stop, proc, err := remoteProcessor()
	if err != nil {
		return err
	}
	defer stop()

	res, err := proc.Analyze(ctx, req)
	if err != nil {
		return err
	}

	switch r := res.(type) {
	case remote.Completed:
		fmt.Println(r.Text)
	case remote.Pending:
		fmt.Printf("%s is still %s. Re-run with --wait, or check it with 'dayflow get-asset --handle %s'.\n",
			r.Handle.Name, r.Handle.State(), r.Handle.Name)
	}
	return nil
}

func analyzeRequest() (remote.AnalyzeRequest, error) {
	req := remote.AnalyzeRequest{
		Name:   handleFlag,
		Prompt: promptFlag,
		Model:  modelFlag,
		FPS:    fpsFlag,
		Wait:   waitFlag,
	}

	var err error
	if req.Start, err = parseOptionalOffset(startFlag); err != nil {
		return req, fmt.Errorf("--start: %w", err)
	}
	if req.End, err = parseOptionalOffset(endFlag); err != nil {
		return req, fmt.Errorf("--end: %w", err)
	}
	if req.FPS < 0 {
		return req, fmt.Errorf("--fps must not be negative")
	}
	return req, nil
}

func parseOptionalOffset(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return remote.ParseOffset(s)
}
