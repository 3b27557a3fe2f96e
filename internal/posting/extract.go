package posting

import (
	"html"
	"regexp"
	"strings"
)

var (
	breakPattern = regexp.MustCompile(`(?i)<(?:p|br)\s*/?>`)
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
)

// PlainText renders the HTML comment text delivered by the Hacker News API as
// plain text. Paragraphs and line breaks become newlines, all other markup is
// dropped and entities are unescaped.
func PlainText(text string) string {
	text = breakPattern.ReplaceAllString(text, "\n")
	text = tagPattern.ReplaceAllString(text, "")

	return strings.TrimSpace(html.UnescapeString(text))
}

// ExtractTags derives the tech stack tags of a posting from its HTML text by
// matching the plain text against a vocabulary of known technology names.
// Tags keep their canonical spelling, appear in order of first occurrence and
// are free of case-insensitive duplicates.
func ExtractTags(text string) TagList {
	words := splitWords(PlainText(text))

	var tags TagList
	seen := make(map[string]struct{})
	add := func(canonical string) {
		key := strings.ToLower(canonical)
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			tags = append(tags, canonical)
		}
	}

	for i, word := range words {
		// Short names that double as English words only count when spelled
		// exactly as the technology is, e.g. "Go" but not "go".
		if canonical, ok := exactNames[word]; ok {
			add(canonical)
			continue
		}

		// Two-word names win over their first word alone, so "React Native"
		// does not degrade to "React".
		if i+1 < len(words) {
			pair := strings.ToLower(word + " " + words[i+1])
			if canonical, ok := foldedNames[pair]; ok {
				add(canonical)
				continue
			}
		}

		if canonical, ok := foldedNames[strings.ToLower(word)]; ok {
			add(canonical)
		}
	}

	return tags
}

// splitWords splits plain text into candidate words, keeping the characters
// that occur inside technology names ("C++", "C#", ".NET", "Node.js") and
// trimming sentence punctuation.
func splitWords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '+' || r == '#' || r == '.' || r == '-':
			return false
		}

		return true
	})

	words := fields[:0]
	for _, field := range fields {
		field = strings.TrimRight(field, ".-")
		if field != "" {
			words = append(words, field)
		}
	}

	return words
}

// exactNames are technology names matched case-sensitively because their
// lowercase form is a common word.
var exactNames = map[string]string{
	"Go": "Go",
	"C":  "C",
	"R":  "R",
}

// foldedNames maps lowercased technology names, including common aliases and
// two-word names, to their canonical spelling.
var foldedNames = map[string]string{
	"python":     "Python",
	"javascript": "JavaScript",
	"js":         "JavaScript",
	"typescript": "TypeScript",
	"ts":         "TypeScript",
	"java":       "Java",
	"kotlin":     "Kotlin",
	"swift":      "Swift",
	"golang":     "Go",
	"rust":       "Rust",
	"c++":        "C++",
	"cpp":        "C++",
	"c#":         "C#",
	"csharp":     "C#",
	".net":       ".NET",
	"dotnet":     ".NET",
	"ruby":       "Ruby",
	"php":        "PHP",
	"scala":      "Scala",
	"elixir":     "Elixir",
	"erlang":     "Erlang",
	"haskell":    "Haskell",
	"ocaml":      "OCaml",
	"clojure":    "Clojure",
	"julia":      "Julia",
	"perl":       "Perl",
	"lua":        "Lua",
	"dart":       "Dart",
	"zig":        "Zig",

	"react":        "React",
	"react native": "React Native",
	"angular":      "Angular",
	"vue":          "Vue",
	"vue.js":       "Vue",
	"svelte":       "Svelte",
	"next.js":      "Next.js",
	"nextjs":       "Next.js",
	"tailwind":     "Tailwind",
	"css":          "CSS",
	"html":         "HTML",

	"django":  "Django",
	"flask":   "Flask",
	"fastapi": "FastAPI",
	"rails":   "Rails",
	"laravel": "Laravel",
	"symfony": "Symfony",
	"spring":  "Spring",
	"node":    "Node.js",
	"node.js": "Node.js",
	"nodejs":  "Node.js",
	"express": "Express",
	"graphql": "GraphQL",
	"grpc":    "gRPC",

	"postgresql":    "PostgreSQL",
	"postgres":      "PostgreSQL",
	"mysql":         "MySQL",
	"mariadb":       "MariaDB",
	"sqlite":        "SQLite",
	"mongodb":       "MongoDB",
	"redis":         "Redis",
	"kafka":         "Kafka",
	"rabbitmq":      "RabbitMQ",
	"elasticsearch": "Elasticsearch",
	"clickhouse":    "ClickHouse",
	"cassandra":     "Cassandra",
	"dynamodb":      "DynamoDB",
	"snowflake":     "Snowflake",
	"spark":         "Spark",
	"hadoop":        "Hadoop",
	"airflow":       "Airflow",
	"dbt":           "dbt",

	"aws":        "AWS",
	"gcp":        "GCP",
	"azure":      "Azure",
	"kubernetes": "Kubernetes",
	"k8s":        "Kubernetes",
	"docker":     "Docker",
	"terraform":  "Terraform",
	"ansible":    "Ansible",
	"linux":      "Linux",
	"devops":     "DevOps",

	"machine learning": "Machine Learning",
	"ml":               "Machine Learning",
	"deep learning":    "Deep Learning",
	"tensorflow":       "TensorFlow",
	"pytorch":          "PyTorch",
	"llm":              "LLM",
	"llms":             "LLM",
	"nlp":              "NLP",

	"ios":         "iOS",
	"android":     "Android",
	"flutter":     "Flutter",
	"webassembly": "WebAssembly",
	"wasm":        "WebAssembly",
	"unity":       "Unity",
	"solidity":    "Solidity",
	"webrtc":      "WebRTC",
	"embedded":    "Embedded",
	"objective-c": "Objective-C",
	"springboot":  "Spring",
}
