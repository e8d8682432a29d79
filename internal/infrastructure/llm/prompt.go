package llm

import "fmt"

const summarySystemPrompt = "You are a helpful assistant that creates concise, engaging summaries of articles. Focus on the key points and main takeaways."

func summaryPrompt(content string) string {
	return "Please summarize this article in 2-3 sentences, maintaining key information:\n\n" + content
}

func tagsPrompt(content string) string {
	return "Generate 3-5 relevant tags for this content. Return only the tags separated by commas:\n\n" + content
}

func categoryPrompt(content string) string {
	return "Categorize this content into one of these categories: Technology, Business, Lifestyle, Entertainment, Science, Politics, Sports, Health. Return only the category name:\n\n" + content
}

func rewritePrompt(title, source, content string, originalWords, targetWords int) string {
	return fmt.Sprintf(`You are a professional content writer producing original, SEO-friendly articles that give readers real value and leave room for relevant product mentions.

ORIGINAL TITLE: %s
ORIGINAL SOURCE: %s
ORIGINAL CONTENT: %s
ORIGINAL WORD COUNT: %d words
TARGET WORD COUNT: %d words (±10%% tolerance)

GUIDELINES:
1. Open with an introduction that hooks the reader, then use well-structured paragraphs under clear H2/H3 subheadings and close with a short call to action.
2. Use relevant keywords naturally and answer the obvious reader questions clearly and concisely.
3. Mention products or services only where they genuinely help the reader.
4. Keep a conversational tone, active voice and short sentences. Bullet points are welcome.
5. Add practical tips and background beyond the original while keeping its facts accurate.
6. The text must be completely original. Aim for %d words.

REWRITTEN ARTICLE:`, title, source, content, originalWords, targetWords, targetWords)
}
