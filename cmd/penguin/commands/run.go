package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/penguin-run/penguin/internal/agent"
	"github.com/penguin-run/penguin/internal/checkpoint"
	"github.com/penguin-run/penguin/internal/config"
	"github.com/penguin-run/penguin/internal/conversation"
	"github.com/penguin-run/penguin/internal/engine"
	"github.com/penguin-run/penguin/internal/executor"
	"github.com/penguin-run/penguin/internal/permission"
	"github.com/penguin-run/penguin/internal/provider"
	"github.com/penguin-run/penguin/internal/session"
	"github.com/penguin-run/penguin/internal/storage"
	"github.com/penguin-run/penguin/internal/tool"
	"github.com/penguin-run/penguin/pkg/types"
)

var (
	runModel    string
	runAgent    string
	runSession  string
	runFiles    []string
	runDir      string
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Run a single turn against a session",
	Long: `Run a single turn: append the given message to a session (creating one
if needed) and drive the reasoning engine until it stops.

Examples:
  penguin run "Fix the bug in main.go"
  penguin run --model anthropic/claude-sonnet-4-20250514 "Explain this code"
  penguin run --session sess_01 "continue"
  penguin run --file main.go "Review this file"`,
	RunE: runTurn,
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model to use (provider/model format)")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "Agent to use (default: build)")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Session ID to continue")
	runCmd.Flags().StringArrayVarP(&runFiles, "file", "f", nil, "File(s) to attach to message")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
}

func runTurn(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if runModel != "" {
		appConfig.Model = runModel
	}

	message := strings.Join(args, " ")
	var fileContent strings.Builder
	for _, file := range runFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", file, err)
		}
		fileContent.WriteString(fmt.Sprintf("\n\n--- File: %s ---\n%s", file, string(content)))
	}
	if fileContent.Len() > 0 {
		message += fileContent.String()
	}
	if message == "" {
		return fmt.Errorf("message required. Usage: penguin run \"your message\"")
	}

	ctx := context.Background()

	store := storage.New(paths.StoragePath())
	sessions := session.New(store)
	toolReg := tool.DefaultRegistry(workDir, store)
	agents := agent.NewRegistry()
	if err := agents.LoadDir(config.ProjectAgentsPath(workDir)); err != nil {
		return fmt.Errorf("failed to load custom agents: %w", err)
	}
	permChecker := permission.NewChecker()
	doomLoop := permission.NewDoomLoopDetector()

	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}

	conv := conversation.New(sessions, toolReg, appConfig)
	checkpoints := checkpoint.New(store, sessions, appConfig.Checkpoint)
	checkpoints.Start(ctx)
	defer checkpoints.Stop()

	eng := engine.New(sessions, conv, providerReg, toolReg, agents, permChecker, doomLoop, checkpoints, appConfig)

	toolReg.RegisterTaskTool(agents)
	toolReg.SetTaskExecutor(executor.NewSubagentExecutor(executor.SubagentExecutorConfig{
		Sessions:     sessions,
		Conversation: conv,
		Engine:       eng,
		Agents:       agents,
		WorkDir:      workDir,
	}))

	sess, err := resolveSession(ctx, sessions, workDir)
	if err != nil {
		return err
	}

	if err := appendUserMessage(ctx, conv, sess.ID, message); err != nil {
		return fmt.Errorf("failed to append user message: %w", err)
	}

	agentName := runAgent
	if agentName == "" {
		agentName = "build"
	}
	ag, err := agents.Get(agentName)
	if err != nil {
		return fmt.Errorf("unknown agent %q: %w", agentName, err)
	}

	fmt.Printf("Session %s (agent %s)\n\n", sess.ID, ag.Name)

	summary, err := eng.Run(ctx, sess.ID, ag)
	if err != nil {
		return fmt.Errorf("turn error: %w", err)
	}

	parts, err := sessions.GetParts(ctx, summary.Message.ID)
	if err != nil {
		return fmt.Errorf("failed to load response: %w", err)
	}
	for _, p := range parts {
		if tp, ok := p.(*types.TextPart); ok {
			fmt.Print(tp.Text)
		}
	}
	fmt.Println()

	if summary.Message.Error != nil {
		return fmt.Errorf("%s: %s", summary.Message.Error.Type, summary.Message.Error.Message)
	}
	return nil
}

func resolveSession(ctx context.Context, sessions *session.Store, workDir string) (*types.Session, error) {
	if runSession != "" {
		return sessions.Get(ctx, runSession)
	}
	return sessions.Create(ctx, workDir, nil)
}

func appendUserMessage(ctx context.Context, conv *conversation.Assembler, sessionID, text string) error {
	msg := &types.Message{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Role:      "user",
		Category:  types.CategoryDialog,
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	part := &types.TextPart{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		MessageID: msg.ID,
		Type:      "text",
		Text:      text,
	}
	return conv.AddMessage(ctx, msg, []types.Part{part})
}
