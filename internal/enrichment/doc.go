// Package enrichment adapts the external providers to the four single-shot
// calls of the unlock chain: Analyze, Enhance, Compare and Render.
//
// TextProvider serves the three text stages over the llm chat client;
// RenderProvider serves the render stage over the render job client.
// Providers bundles one implementation of each so the retrieval pipeline and
// the scheduler's status report can depend on a single value.
package enrichment
