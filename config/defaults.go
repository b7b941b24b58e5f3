package config

import (
	"time"

	"github.com/lalomorales22/roundtable/core"
)

const teamLine = "Use ```CODE_OUTPUT:filename.ext:language``` for code files and MEMORY_STORE:key:value to remember important facts."

// Defaults returns the built-in eight agent team with its summarizer.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9090",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:      DriverSQLite,
			Path:        "roundtable.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "roundtable",
		},
		Round: RoundConfig{
			Window:            12,
			MaxRounds:         8,
			ContinueThreshold: 70,
			CallTimeout:       120 * time.Second,
			ConnectTimeout:    20 * time.Second,
			RetryAttempts:     1,
			RetryInterval:     time.Second,
			SpeakerPause:      750 * time.Millisecond,
			HumanName:         core.DefaultHumanSpeaker,
			Memories:          true,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		APIs: map[string]APIConfig{
			"claude": {Kind: KindAnthropic},
			"grok":   {Kind: KindOpenAI, BaseURL: "https://api.x.ai/v1"},
			"openai": {Kind: KindOpenAI},
			"gemini": {Kind: KindGemini, MaxContextTokens: 8000},
			"groq":   {Kind: KindOpenAI, BaseURL: "https://api.groq.com/openai/v1"},
		},
		Agents: []core.Agent{
			{
				Name:    "Claude",
				Role:    "Senior Engineer",
				Persona: "You are Claude, the Senior Engineer. Write high-quality, production-ready code and review what the team proposes. " + teamLine,
				API:     "claude",
				Model:   "claude-3-haiku-20240307",
			},
			{
				Name:    "Grok",
				Role:    "Systems Architect",
				Persona: "You are Grok, the Systems Architect. Design scalable systems and infrastructure for the team. " + teamLine,
				API:     "grok",
				Model:   "grok-4-0709",
			},
			{
				Name:    "ChatGPT",
				Role:    "Project Manager",
				Persona: "You are ChatGPT, the Project Manager. Coordinate the team, manage project flow and create task breakdowns. " + teamLine,
				API:     "openai",
				Model:   "gpt-4o",
			},
			{
				Name:    "Gemini",
				Role:    "Frontend Engineer",
				Persona: "You are Gemini, the Frontend & UX Engineer. Create clear user interfaces and experiences. " + teamLine,
				API:     "gemini",
				Model:   "gemini-1.5-flash",
			},
			{
				Name:    "Llama",
				Role:    "Ethical AI Specialist",
				Persona: "You are Llama, the Ethical AI Specialist. Make sure the team follows ethical AI practices and builds safety into its systems. " + teamLine,
				API:     "groq",
				Model:   "llama3-70b-8192",
			},
			{
				Name:    "Llama Versatile",
				Role:    "Creative Strategist",
				Persona: "You are Llama Versatile, the Creative Strategist. Bring creative solutions and unconventional approaches. " + teamLine,
				API:     "groq",
				Model:   "llama-3.1-8b-instant",
			},
			{
				Name:    "Gemma",
				Role:    "Data Scientist",
				Persona: "You are Gemma, the Data Scientist. Analyze data and build models that support the team's work. " + teamLine,
				API:     "groq",
				Model:   "gemma2-9b-it",
			},
			{
				Name:    "Qwen",
				Role:    "Technical Writer",
				Persona: "You are Qwen, the Technical Writer. Turn the team's work into clear documentation and guides. " + teamLine,
				API:     "groq",
				Model:   "qwen/qwen3-32b",
			},
		},
		Summarizer: &core.Agent{
			Name:    "Summarizer",
			Role:    "Summarizer",
			Persona: "You are the team Summarizer. Provide concise summaries of the team's progress, highlighting key decisions, code contributions and next steps. Be brief and actionable.",
			API:     "openai",
			Model:   "gpt-3.5-turbo",
		},
	}
}
