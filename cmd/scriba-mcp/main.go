// -----------------------------------------------------------------------
// scriba-mcp - Transcription job service (agent-tool surface over stdio)
// -----------------------------------------------------------------------

package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/scriba/internal/app"
	"github.com/ternarybob/scriba/internal/common"
)

func main() {
	common.Version = common.LoadVersionFromFile()

	configPath := os.Getenv("SCRIBA_CONFIG")
	if configPath == "" {
		configPath = "scriba.toml"
	}

	var config *common.Config
	var err error
	if _, statErr := os.Stat(configPath); statErr == nil {
		config, err = common.LoadFromFile(configPath)
	} else {
		config, err = common.LoadFromFiles()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Minimal console logger: stdio carries the protocol, so logging
	// stays on stderr at warn level.
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Shutdown()

	// The tool surface drives the same pipeline as the HTTP binary, so
	// the worker pool and sweeper run here too.
	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start background services")
	}

	mcpServer := server.NewMCPServer(
		"scriba",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createTranscribeAudioTool(), handleTranscribeAudio(application, logger))
	mcpServer.AddTool(createGetProgressTool(), handleGetProgress(application, logger))
	mcpServer.AddTool(createGetResultTool(), handleGetResult(application, logger))
	mcpServer.AddTool(createListHistoryTool(), handleListHistory(application, logger))
	mcpServer.AddTool(createBatchTranscribeTool(), handleBatchTranscribe(application, logger))
	mcpServer.AddTool(createCancelTool(), handleCancel(application, logger))

	// Blocks on stdio until the client disconnects.
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
