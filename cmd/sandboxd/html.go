package main

// indexHTML is the demonstration host's status page. Its client script
// opens an EventSource against the SSE endpoint and re-fetches
// /api/run whenever the status goes back to idle, since the thing that
// changes on an "apply" status here is the evaluator's own output
// rather than a loaded ES module graph.
const indexHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>sandboxd</title>
<style>
body { font-family: monospace; margin: 2rem; }
#status { font-weight: bold; }
pre { background: #111; color: #0f0; padding: 1rem; overflow: auto; }
</style>
</head>
<body>
<h1>sandboxd</h1>
<p>status: <span id="status">idle</span></p>
<pre id="output">(loading)</pre>
<script type="module">
(() => {
  const statusEl = document.getElementById("status");
  const outputEl = document.getElementById("output");

  async function run() {
    try {
      const res = await fetch("/api/run");
      const data = await res.json();
      outputEl.textContent = JSON.stringify(data, null, 2);
    } catch (err) {
      outputEl.textContent = String(err);
    }
  }

  const es = new EventSource("/__sandbox_sse");
  es.addEventListener("status", (e) => {
    statusEl.textContent = e.data;
    if (e.data === "idle") run();
  });

  run();
})();
</script>
</body>
</html>
`
