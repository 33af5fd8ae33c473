// Package prompt builds the completion prompts for both cycles:
// idea discovery and per-category bundle generation.
package prompt

import (
	"fmt"
	"math/rand"
	"strings"

	"mvpforge/internal/types"
)

// SystemInstruction steers the model away from prose and reasoning filler.
const SystemInstruction = "You are a code generator. Output ONLY the requested code/JSON. No thinking, no explanations, no markdown wrappers. Start immediately with the code."

// Design is one visual style injected into build prompts so consecutive
// bundles don't all look alike.
type Design struct {
	Name       string
	Background string
	Card       string
	Accent     string
	Text       string
	Button     string
	Font       string
}

var designStyles = []Design{
	{"Glassmorphism Dark", "bg-gradient-to-br from-slate-900 via-purple-900 to-slate-900", "bg-white/10 backdrop-blur-xl border border-white/20 rounded-2xl", "#8b5cf6", "text-white", "bg-gradient-to-r from-violet-500 to-fuchsia-500 text-white shadow-lg", "Inter"},
	{"Neobrutalism", "bg-[#FFFEF0]", "bg-white border-4 border-black shadow-[8px_8px_0_0_#000]", "#FF6B6B", "text-black", "bg-[#FF6B6B] border-4 border-black font-bold uppercase shadow-[4px_4px_0_0_#000]", "Space Grotesk"},
	{"Aurora Emerald", "bg-gradient-to-br from-emerald-950 via-cyan-950 to-blue-950", "bg-white/5 backdrop-blur-lg border border-emerald-500/20 rounded-3xl", "#34d399", "text-white", "bg-gradient-to-r from-emerald-400 to-cyan-400 text-black font-semibold", "DM Sans"},
	{"Soft Minimal", "bg-[#FAF9F6]", "bg-white rounded-[2rem] shadow-[0_8px_30px_rgba(0,0,0,.06)] border border-gray-100", "#f97316", "text-gray-900", "bg-gradient-to-r from-orange-400 to-rose-400 text-white shadow-md", "Plus Jakarta Sans"},
	{"Cyberpunk Neon", "bg-black", "bg-gray-900/80 border border-cyan-500/50 rounded-lg", "#22d3ee", "text-cyan-50", "bg-gradient-to-r from-cyan-400 to-pink-500 text-black font-bold ring-2 ring-cyan-400/50", "JetBrains Mono"},
	{"Warm Sunset", "bg-gradient-to-br from-amber-50 via-orange-50 to-rose-50", "bg-white/70 backdrop-blur-sm rounded-2xl shadow-xl border border-orange-100", "#f59e0b", "text-gray-800", "bg-gradient-to-r from-amber-500 to-rose-500 text-white shadow-lg", "Lora"},
	{"Bento Dark", "bg-[#0a0a0a]", "bg-[#141414] rounded-[20px] border border-white/[.08]", "#a78bfa", "text-white", "bg-white text-black font-medium rounded-full", "Geist"},
	{"Claymorphism", "bg-gradient-to-br from-blue-100 via-indigo-50 to-purple-100", "rounded-[24px] shadow-[0_12px_24px_rgba(0,0,0,.15)]", "#818cf8", "text-gray-800", "bg-indigo-400 text-white font-semibold rounded-2xl", "Outfit"},
	{"Mesh Gradient", "bg-[#0f172a]", "bg-white/[.07] backdrop-blur-xl rounded-2xl border border-white/[.1]", "#f472b6", "text-white", "bg-gradient-to-r from-pink-500 to-violet-500 text-white font-medium shadow-lg", "Inter"},
	{"Terminal Green", "bg-[#0d1117]", "bg-[#161b22] border border-[#30363d] rounded-lg", "#3fb950", "text-[#c9d1d9]", "bg-[#238636] text-white font-medium border border-[#3fb950]/30 rounded-md", "Fira Code"},
	{"Frosted Lavender", "bg-gradient-to-br from-violet-100 via-fuchsia-50 to-sky-100", "bg-white/60 backdrop-blur-lg rounded-3xl border border-violet-200/50 shadow-lg", "#a855f7", "text-violet-950", "bg-gradient-to-r from-violet-500 to-fuchsia-500 text-white font-medium rounded-2xl", "Figtree"},
	{"Mono Editorial", "bg-white", "bg-white border-b-2 border-black pb-6", "#000000", "text-black", "bg-black text-white font-medium px-8 py-3", "Instrument Serif"},
}

// RandomDesign picks one of the built-in design styles.
func RandomDesign(r *rand.Rand) Design {
	return designStyles[r.Intn(len(designStyles))]
}

var aiKeywords = []string{
	"ai", "chatbot", "generate", "analyze", "smart", "predict",
	"recommend", "summarize", "translate", "detect", "classify",
	"sentiment", "nlp", "gpt", "llm", "assistant", "copilot",
	"automate", "intelligence", "machine learning", "neural",
	"conversation", "prompt", "content generation", "writing tool",
}

// NeedsAI reports whether the idea's text suggests it requires a working
// generative feature in the product itself.
func NeedsAI(idea types.Idea) bool {
	text := strings.ToLower(idea.Title + " " + idea.Description + " " + strings.Join(idea.Features, " "))
	for _, kw := range aiKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Discovery builds the idea-generation prompt. Signals ground the ideas in
// observed pain points; when none are available a generic instruction is
// used. Existing titles are listed so the model avoids near-duplicates.
func Discovery(signals []types.Signal, existingTitles []string, count int) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Generate %d distinct micro-SaaS product ideas that one developer could ship as an MVP in a day. Output ONLY a JSON array of objects with these exact fields:
[{"title":"...","description":"...","problem":"...","target_user":"...","features":["...","...","..."],"type":"web|extension|mobile","complexity":"simple|medium","viability":1-10}]

`, count)

	if len(signals) > 0 {
		b.WriteString("Ground the ideas in these real community posts:\n\n")
		for _, sig := range signals {
			fmt.Fprintf(&b, "- [%s, %d points] %s", sig.Channel, sig.Engagement, sig.Title)
			if sig.Excerpt != "" {
				fmt.Fprintf(&b, " — %s", sig.Excerpt)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Target underserved niches: freelancers, small agencies, indie sellers, local services.\n\n")
	}

	if len(existingTitles) > 0 {
		b.WriteString("Do NOT repeat or closely resemble any of these existing products:\n")
		for _, title := range existingTitles {
			fmt.Fprintf(&b, "- %s\n", title)
		}
		b.WriteString("\n")
	}

	b.WriteString("Favor ideas that are concrete tools solving one painful problem. Score viability honestly.\n\nReturn ONLY the JSON array. Start with [ and end with ].")
	return b.String()
}

// Build returns the generation prompt for the idea's category.
func Build(idea types.Idea, design Design) string {
	switch idea.Category {
	case types.CategoryExtension:
		return buildExtension(idea, design)
	case types.CategoryMobile:
		return buildMobile(idea, design)
	default:
		return buildWeb(idea, design)
	}
}

// Regenerate returns a stricter build prompt enumerating the quality checks
// the first attempt failed. Used for the single retry the gate allows.
func Regenerate(idea types.Idea, design Design, issues []string) string {
	var b strings.Builder
	b.WriteString(Build(idea, design))
	b.WriteString("\n\nYOUR PREVIOUS ATTEMPT FAILED THESE QUALITY CHECKS. Fix every one of them:\n")
	for _, issue := range issues {
		fmt.Fprintf(&b, "- FAILED: %s\n", issue)
	}
	b.WriteString("\nDo not repeat these mistakes. Return ONLY the JSON array.")
	return b.String()
}

func header(kind string, idea types.Idea) string {
	return fmt.Sprintf(`Build a COMPLETE %s. Output ONLY a JSON array of file objects: [{"path":"...","content":"..."},...]. No explanations.

PROJECT: %s
DESCRIPTION: %s
FEATURES: %s
`, kind, idea.Title, idea.Description, strings.Join(idea.Features, "; "))
}

func designBlock(d Design) string {
	return fmt.Sprintf(`DESIGN: %q
- Background: %s
- Cards: %s
- Accent color: %s
- Text: %s
- Buttons: %s
- Google Font: %s
`, d.Name, d.Background, d.Card, d.Accent, d.Text, d.Button, d.Font)
}

const aiIntegrationBlock = `AI INTEGRATION — this product needs a WORKING generative feature:
1. Create src/app/api/ai/route.ts: POST handler that forwards {prompt, systemPrompt} to the configured chat-completion endpoint using process.env API key, returns {result}.
2. Create src/lib/ai.ts with askAI(prompt, systemPrompt) calling fetch("/api/ai").
3. Use askAI() in components; always show a loading spinner while waiting.
`

func buildWeb(idea types.Idea, d Design) string {
	hasAI := NeedsAI(idea)
	var b strings.Builder
	b.WriteString(header("Next.js 14 (App Router) TypeScript web app", idea))
	b.WriteString("\n")
	b.WriteString(designBlock(d))
	if hasAI {
		b.WriteString("\n")
		b.WriteString(aiIntegrationBlock)
	}

	extraFiles := ""
	if hasAI {
		extraFiles = ", src/app/api/ai/route.ts, src/lib/ai.ts"
	}
	fmt.Fprintf(&b, `
MANDATORY PATTERNS (code MUST contain ALL of these):
1. page.tsx MUST start with 'use client' and import { useState } from 'react'
2. page.tsx MUST have: const [items, setItems] = useState([{...}, ...]) with 8+ REALISTIC pre-populated objects (real names like "Sarah Chen", real dates, real prices)
3. page.tsx MUST have 3+ onClick handlers that call setState functions
4. page.tsx MUST have an onSubmit handler for adding new items
5. page.tsx MUST have a loading state and show a spinner/skeleton while loading
6. page.tsx MUST have a delete function: setItems(items.filter(i => i.id !== id))
7. src/app/api/ MUST contain route.ts handlers with real logic (await, parsing, not stubs)
8. Client code MUST call its own /api/ endpoints with fetch
9. NEVER use "Lorem ipsum", "placeholder", "coming soon", "Item 1"
10. Every button MUST have an onClick that does something real

FILES: package.json, tsconfig.json, tailwind.config.ts, postcss.config.js, next.config.js, src/app/globals.css, src/app/layout.tsx, src/app/page.tsx, 3+ component files, src/app/api/items/route.ts%s
DESIGN: Tailwind CSS + Google Font %q + animations (fade-in, hover-lift, button press, skeleton loading)

Return ONLY the JSON array. Start with [ and end with ].`, extraFiles, d.Font)
	return b.String()
}

func buildExtension(idea types.Idea, d Design) string {
	var b strings.Builder
	b.WriteString(header("Chrome Extension with popup UI", idea))
	b.WriteString("\n")
	b.WriteString(designBlock(d))
	b.WriteString(`
MANDATORY PATTERNS (code MUST contain ALL of these):
1. popup.js MUST use: let items = JSON.parse(localStorage.getItem('items') || '[...]') with 6+ realistic pre-populated items
2. popup.js MUST have 3+ addEventListener('click', ...) handlers
3. popup.js MUST have addEventListener('submit', ...) for form handling
4. popup.js MUST call localStorage.setItem() to persist data
5. popup.js MUST have a renderItems() function that displays items
6. popup.js MUST have add, delete, and toggle functions
7. popup.html MUST have <form>, <input>, and 3+ <button> elements
8. popup.css MUST have animations (@keyframes), hover effects, transitions
9. Use REAL data: real names, real dates, real URLs, never placeholders
10. Show loading states and success/error feedback messages

FILES REQUIRED: manifest.json (v3), popup.html, popup.css, popup.js, background.js

Return ONLY the JSON array. Start with [ and end with ].`)
	return b.String()
}

func buildMobile(idea types.Idea, d Design) string {
	var b strings.Builder
	b.WriteString(header("React Native (Expo) mobile app", idea))
	b.WriteString("\n")
	b.WriteString(designBlock(d))
	b.WriteString(`
REQUIREMENTS:
- Files: package.json, app.json, App.tsx, 3+ screen components, navigation setup
- Every screen: working forms/buttons, state management, loading states
- Pre-populate 8-12 REALISTIC demo items (NOT placeholders)
- Working CRUD operations
- StyleSheet matching the design style
- Must look like a real published app

Return ONLY the JSON array. Start with [ and end with ].`)
	return b.String()
}
