package stages

import (
	"fmt"
	"strings"

	"refinery/internal/config"
	"refinery/internal/textutil"
)

// Prompt truncation limits keep request sizes predictable regardless of how
// large a scraped artifact is.
const (
	maxPromptDescription = 2000
	maxPromptSource      = 4000
	maxPromptConverted   = 4000
	maxPromptFeedback    = 2000
)

const qualitySystemPrompt = `You are a trading strategy quality assessor. You evaluate whether a strategy description contains sufficient information about indicators and implementation details.

A GOOD description includes:
1. Indicators: clear mention of technical indicators used (VWAP, RSI, MACD, moving averages, volume, etc.)
2. Strategy logic: specific entry/exit rules, conditions, and calculations
3. Implementation details: concrete information about how to implement the strategy

A BAD description is vague, is marketing language without technical details, or never explains how the strategy works.

Scoring guidelines:
- 80-100: excellent, rich technical details with specific implementation steps
- 60-79: good, has indicators and strategy logic but could be more detailed
- 40-59: fair, some technical content but lacks specifics
- 20-39: poor, very vague with minimal technical content
- 0-19: unacceptable, no meaningful indicator or strategy information

Respond with ONLY a JSON object, no additional text.`

func qualityUserPrompt(name, description string, threshold int) string {
	return fmt.Sprintf(`Strategy Name: %s

Strategy Description:
%s

Evaluate this description and respond in this JSON format:
{
  "passed": true,
  "score": 0,
  "reasoning": "explanation of the decision",
  "indicators_present": true,
  "strategy_present": true
}

Set "passed" to true only if score >= %d.`,
		orNotProvided(name), textutil.Truncate(description, maxPromptDescription), threshold)
}

func convertSystemPrompt(backend string) string {
	if backend == config.BackendPyne {
		return `You are an expert converter that converts TradingView Pine Script (v5/6) to PyneCore Python. Produce valid, runnable PyneCore code.

Requirements:
1. Start the file with the @pyne header comment
2. Include required imports
3. Apply the @script.strategy decorator using the original name when possible
4. Put the converted body inside def main()
5. Omit plotting and drawing calls

Return ONLY a fenced Python code block containing the converted script.`
	}
	return `You are an expert converter that transforms TradingView Pine Script strategies into Backtrader Python strategies. Convert the Pine Script strategy to a complete, runnable Backtrader strategy.

Requirements:
1. Create a class inheriting from bt.Strategy
2. Convert Pine Script inputs to Backtrader params
3. Convert Pine Script indicators to Backtrader indicators in __init__
4. Convert strategy.entry/exit calls to self.buy/sell/close in the next() method
5. Include a complete runnable example with Cerebro setup
6. Handle position sizing and risk management
7. Add proper imports (backtrader, pandas, datetime)

Return ONLY a fenced Python code block containing the converted strategy.`
}

func convertUserPrompt(source, feedback string) string {
	var b strings.Builder
	b.WriteString("Original Pine Script strategy:\n\n")
	b.WriteString(textutil.Truncate(source, maxPromptSource))
	if feedback != "" {
		b.WriteString("\n\nValidator feedback from the previous attempt, fix these issues:\n")
		b.WriteString(textutil.Truncate(feedback, maxPromptFeedback))
	}
	return b.String()
}

const validateSystemPrompt = `You are a code reviewer for automated trading strategy conversions. Judge whether the converted code is semantically equivalent to the original Pine Script: same indicators, same entry and exit conditions, same parameters. Respond with ONLY a JSON object: {"valid": true, "reason": "explanation"}. When invalid, make the reason specific enough for a converter to act on.`

func validateUserPrompt(backend, original, converted string) string {
	return fmt.Sprintf(`Target backend: %s

Original Pine Script (truncated):
%s

Converted code (truncated):
%s`,
		backend,
		textutil.Truncate(original, maxPromptSource),
		textutil.Truncate(converted, maxPromptConverted))
}

const describeSystemPrompt = `You analyze trading strategies and produce structured technical documentation. Be specific and technical. Respond with ONLY a valid JSON object matching the requested template.`

func describeUserPrompt(name, description, converted string) string {
	return fmt.Sprintf(`Analyze the following trading strategy and produce a structured analysis.

Strategy Name: %s

Description: %s

Converted Source (excerpt): %s

Generate a JSON object with this structure:
{
  "title": "strategy name",
  "abstract": "summary of what the strategy does and its key features",
  "main_algorithms": "detailed description of the algorithms and methods used",
  "key_concepts": ["technical concepts", "strategies", "indicators used"],
  "mathematical_models": ["formulas and calculation methods"],
  "implementation_requirements": ["required data sources", "technical requirements"],
  "evaluation_metrics": ["how to evaluate performance"],
  "high_level_logic": "overall logic and workflow",
  "complexity_analysis": "computational complexity notes",
  "novelty": "what makes this strategy unique"
}`,
		orNotProvided(name),
		textutil.Truncate(description, maxPromptDescription),
		textutil.Truncate(converted, 1000))
}

const symbolsSystemPrompt = `You are a trading strategy analyzer. Identify which trading symbols or cryptocurrency pairs are most relevant to a given strategy.

Common symbols include stablecoins (USDT, USDC, DAI), major cryptocurrencies (BTC, ETH, BNB, SOL), trading pairs (BTC/USDT, ETH/USDT), and traditional assets (USD, EUR, GOLD).

Rules:
1. List symbols in order of relevance
2. Include 1-5 symbols maximum
3. Use standard uppercase symbol notation
4. Report high confidence only when symbols are explicitly mentioned, medium when strongly implied, low otherwise

Respond with ONLY a JSON object, no additional text.`

func symbolsUserPrompt(name, description string) string {
	return fmt.Sprintf(`Strategy Name: %s

Strategy Description:
%s

Respond in this JSON format:
{
  "symbols": ["SYMBOL1", "SYMBOL2"],
  "confidence": "high",
  "reasoning": "why these symbols are relevant"
}`,
		orNotProvided(name), textutil.Truncate(description, maxPromptDescription))
}

func orNotProvided(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not provided"
	}
	return s
}
