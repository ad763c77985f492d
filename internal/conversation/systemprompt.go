package conversation

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/penguin-run/penguin/internal/agent"
	"github.com/penguin-run/penguin/pkg/types"
)

// SystemPrompt builds the system prompt sent as the first message of a
// turn. It layers a provider header, the agent's own prompt, model-specific
// guidance, environment context, any custom rules file found in the
// working directory, and tool usage guidelines.
type SystemPrompt struct {
	session    *types.Session
	agent      *agent.Agent
	providerID string
	modelID    string
}

// NewSystemPrompt builds a SystemPrompt for the given session, agent, and
// resolved provider/model pair.
func NewSystemPrompt(session *types.Session, ag *agent.Agent, providerID, modelID string) *SystemPrompt {
	return &SystemPrompt{session: session, agent: ag, providerID: providerID, modelID: modelID}
}

// Build constructs the complete system prompt text.
func (s *SystemPrompt) Build() string {
	var parts []string

	if header := s.providerHeader(); header != "" {
		parts = append(parts, header)
	}
	if s.agent != nil && s.agent.Prompt != "" {
		parts = append(parts, s.agent.Prompt)
	}
	if modelPrompt := s.modelPrompt(); modelPrompt != "" {
		parts = append(parts, modelPrompt)
	}
	parts = append(parts, s.environmentContext())
	if rules := s.loadCustomRules(); rules != "" {
		parts = append(parts, rules)
	}
	if instructions := s.toolInstructions(); instructions != "" {
		parts = append(parts, instructions)
	}

	return strings.Join(parts, "\n\n")
}

func (s *SystemPrompt) providerHeader() string {
	switch s.providerID {
	case "anthropic":
		return `You are Claude, an AI assistant made by Anthropic. You are helpful, harmless, and honest.

IMPORTANT: You have access to tools that can read, write, and execute commands on the user's computer. Use them responsibly.`
	case "openai":
		return `You are a helpful AI assistant with access to tools for reading, writing, and executing commands.

Use tools responsibly and follow user instructions carefully.`
	case "google":
		return `You are a helpful AI assistant with tool access.

You can read files, write code, and execute commands to help the user.`
	default:
		return ""
	}
}

func (s *SystemPrompt) modelPrompt() string {
	switch {
	case strings.Contains(s.modelID, "claude"):
		return `When using tools, be decisive and take action. Don't ask for confirmation unless absolutely necessary.

For file operations:
- Read files before editing to understand context
- Make minimal, focused changes
- Preserve existing code style and formatting`
	case strings.Contains(s.modelID, "gpt"):
		return `When working with files:
- Always read files before making changes
- Make precise, targeted edits
- Follow existing code conventions`
	case strings.Contains(s.modelID, "gemini"):
		return `For code tasks:
- Examine existing code structure first
- Make minimal necessary changes
- Maintain code style consistency`
	default:
		return ""
	}
}

func (s *SystemPrompt) environmentContext() string {
	var env strings.Builder

	env.WriteString("# Environment Information\n\n")

	workDir := ""
	if s.session != nil {
		workDir = s.session.Directory
	}
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	env.WriteString(fmt.Sprintf("Working Directory: %s\n", workDir))
	env.WriteString(fmt.Sprintf("Current Date: %s\n", time.Now().Format("2006-01-02")))
	env.WriteString(fmt.Sprintf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH))

	if branch := getGitBranch(workDir); branch != "" {
		env.WriteString(fmt.Sprintf("Git Branch: %s\n", branch))
	}
	if projectType := detectProjectType(workDir); projectType != "" {
		env.WriteString(fmt.Sprintf("Project Type: %s\n", projectType))
	}

	return env.String()
}

func (s *SystemPrompt) loadCustomRules() string {
	workDir := ""
	if s.session != nil {
		workDir = s.session.Directory
	}
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	locations := []string{
		filepath.Join(workDir, "AGENTS.md"),
		filepath.Join(workDir, "CLAUDE.md"),
		filepath.Join(workDir, ".penguin", "rules.md"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(home, ".config", "penguin", "rules.md"))
	}

	for _, loc := range locations {
		if content, err := os.ReadFile(loc); err == nil && len(content) > 0 {
			return fmt.Sprintf("# Custom Rules\n\n%s", string(content))
		}
	}
	return ""
}

func (s *SystemPrompt) toolInstructions() string {
	return `# Tool Usage Guidelines

1. **File Operations**
   - Use the Read tool before editing files
   - Use Edit for surgical changes, Write for new files
   - Always provide absolute paths

2. **Bash Commands**
   - Prefer built-in tools over bash when possible
   - Include a description for every bash command
   - Handle errors gracefully

3. **Search**
   - Use Glob for file discovery
   - Use Grep for content search
   - Be specific with patterns to avoid noise

4. **Best Practices**
   - Work iteratively, verify changes work
   - Don't modify files you haven't read
   - Explain your reasoning before acting`
}

func getGitBranch(dir string) string {
	if dir == "" {
		return ""
	}
	cmd := exec.Command("git", "branch", "--show-current")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

func detectProjectType(dir string) string {
	if dir == "" {
		return ""
	}

	indicators := []struct {
		name     string
		patterns []string
	}{
		{"Go", []string{"go.mod"}},
		{"Node.js", []string{"package.json"}},
		{"Python", []string{"pyproject.toml", "setup.py", "requirements.txt"}},
		{"Rust", []string{"Cargo.toml"}},
		{"Java", []string{"pom.xml", "build.gradle"}},
		{"Ruby", []string{"Gemfile"}},
		{"PHP", []string{"composer.json"}},
		{"Elixir", []string{"mix.exs"}},
	}

	for _, ind := range indicators {
		for _, pattern := range ind.patterns {
			matches, _ := filepath.Glob(filepath.Join(dir, pattern))
			if len(matches) > 0 {
				return ind.name
			}
		}
	}
	return ""
}
