package handlers

import (
	"fmt"
	"strings"
)

func searchPrompt(query string) string {
	return fmt.Sprintf(`Search Query: %s

As a Knowledge Specialist in 2026, provide a comprehensive search result for the query above.

Structure your response as follows:
🌐 [Topic Overview]
Brief summary of the most current information.

📌 [Key Facts & Developments]
- Detail 1
- Detail 2

🛠️ [Practical Insights/Applications]
How this information is used or its significance.

💡 [Expert Tip]
A unique insight or recommendation.

Keep it professional, accurate, and formatted for a mobile chat interface.`, query)
}

// codePrompt asks for a review when the argument carries a code fence,
// otherwise treats it as a programming question.
func codePrompt(arg string) string {
	if strings.Contains(arg, "```") {
		return fmt.Sprintf(`Analyze this code and provide:

1. What it does
2. Any issues or bugs
3. Improvements
4. Best practices

Code:
%s`, arg)
	}

	return fmt.Sprintf(`Answer this programming question: %s

Provide:
1. Clear explanation
2. Code examples if applicable
3. Best practices
4. Common pitfalls to avoid`, arg)
}
