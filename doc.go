// Package tex2html converts LaTeX documents to HTML through an external
// conversion engine (pandoc), adapting to the engine's memory limits and
// failure modes.
//
// # Quick Start
//
// Create a session, convert a document, and close when done:
//
//	sess := tex2html.NewSession()
//	defer sess.Close()
//
//	result, err := sess.Convert(tex2html.Input{
//	    Source: `\documentclass{article}\begin{document}$E=mc^2$\end{document}`,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("output.html", result.HTML, 0644)
//
// The result contains the rendered HTML and the run statistics
// (complexity score, chunking, cross-reference counts, recoveries).
//
// # Conversion Pipeline
//
// Each conversion moves through these stages:
//
//  1. Cross-reference preprocessing (anchor injection, equation numbering)
//  2. Complexity assessment (weighted structural indicator scoring)
//  3. Engine conversion, whole-document or chunked, raced against a deadline
//  4. Output cleaning (wrapper stripping, duplicate title removal,
//     equation anchor fixing, optional chroma highlighting)
//  5. Math typesetting to MathML via treeblood
//
// Documents scoring above the complexity threshold (or exceeding the
// length threshold) are decomposed into independently convertible chunks
// along section boundaries and converted sequentially; chunk outputs are
// reassembled in original order. Engine memory exhaustion on a
// whole-document attempt falls back to the chunked path automatically;
// an engine trap earns one retry with a reduced argument set.
//
// # Resource Guardian
//
// Each session runs a watchdog that samples heap usage and the node
// population of the last rendered output, triggering tiered cleanup
// (safe, minimal, full) when thresholds are breached. Cleanup defers to
// in-flight annotation work and never races an active conversion.
//
// # Configuration
//
// Use functional options to customize the session:
//
//	sess := tex2html.NewSession(
//	    tex2html.WithTimeout(2 * time.Minute),
//	    tex2html.WithEngineBinary("/usr/local/bin/pandoc"),
//	    tex2html.WithHighlighting("github"),
//	)
//
// # Parallel Processing
//
// For batch conversion, use SessionPool to manage multiple sessions:
//
//	pool := tex2html.NewSessionPool(4)
//	defer pool.Close()
//
//	sess := pool.Acquire()
//	defer pool.Release(sess)
//	result, err := sess.Convert(input)
//
// # Engine Requirements
//
// Conversion requires pandoc on PATH (or WithEngineBinary). The engine
// call cannot be interrupted once started; timeouts abandon the call and
// discard its late result.
package tex2html
