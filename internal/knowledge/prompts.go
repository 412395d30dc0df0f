package knowledge

import (
	"strings"
	"text/template"
)

// 问答提示词模板
var (
	stuffSystemPrompt = template.Must(template.New("stuff").Parse(
		`Use the following pieces of context to answer the user's question.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
----------------
{{.Context}}`))

	mapPrompt = template.Must(template.New("map").Parse(
		`Use the following portion of a long document to see if any of the text is relevant to answer the question.
Return any relevant text verbatim.
{{.Context}}
Question: {{.Question}}
Relevant text, if any:`))

	combinePrompt = template.Must(template.New("combine").Parse(
		`Given the following extracted parts of a long document and a question, create a final answer.
If you don't know the answer, just say that you don't know. Don't try to make up an answer.

QUESTION: {{.Question}}
=========
{{.Context}}
=========
FINAL ANSWER:`))

	refineInitialPrompt = template.Must(template.New("refine_initial").Parse(
		`Context information is below.
---------------------
{{.Context}}
---------------------
Given the context information and not prior knowledge, answer the question: {{.Question}}`))

	refineStepPrompt = template.Must(template.New("refine_step").Parse(
		`The original question is as follows: {{.Question}}
We have provided an existing answer: {{.Existing}}
We have the opportunity to refine the existing answer (only if needed) with some more context below.
------------
{{.Context}}
------------
Given the new context, refine the original answer to better answer the question.
If the context isn't useful, return the original answer.`))

	rerankPrompt = template.Must(template.New("map_rerank").Parse(
		`Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.

In addition to giving an answer, also return a score of how fully it answered the user's question.
This should be in the following format:

Question: [question here]
Helpful Answer: [answer here]
Score: [score between 0 and 100]

Begin!

Context:
---------
{{.Context}}
---------
Question: {{.Question}}
Helpful Answer:`))
)

const answerSystemPrompt = "You are a helpful assistant that answers questions about an uploaded document."

type promptData struct {
	Question string
	Context  string
	Existing string
}

func renderPrompt(tmpl *template.Template, data promptData) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// joinChunks 拼接分块文本作为上下文
func joinChunks(chunks []ScoredChunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Chunk.Text
	}
	return strings.Join(texts, "\n\n")
}
