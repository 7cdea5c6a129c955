package api

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>RAG Chat</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .card { max-width: 640px; width: 90%; background: #1e293b; border-radius: 12px; padding: 2rem; }
  h1 { font-size: 1.5rem; margin-bottom: 1rem; color: #f8fafc; }
  #log { height: 320px; overflow-y: auto; background: #0f172a; border: 1px solid #334155; border-radius: 8px; padding: 0.75rem; margin-bottom: 1rem; font-size: 0.9rem; }
  .q { color: #a5b4fc; margin-top: 0.5rem; }
  .a { color: #e2e8f0; white-space: pre-wrap; }
  form { display: flex; gap: 0.5rem; }
  input { flex: 1; padding: 0.5rem; border-radius: 6px; border: 1px solid #334155; background: #0f172a; color: #e2e8f0; }
  button { padding: 0.5rem 1rem; border-radius: 6px; border: 0; background: #38bdf8; color: #0f172a; cursor: pointer; }
  .endpoint { font-family: "SF Mono", monospace; font-size: 0.8rem; color: #64748b; margin-top: 1rem; }
</style>
</head>
<body>
<div class="card">
  <h1>RAG Chat</h1>
  <div id="log"></div>
  <form id="f">
    <input id="q" autocomplete="off" placeholder="Ask a question">
    <button type="submit">Send</button>
    <button type="button" id="reset">Reset</button>
  </form>
  <p class="endpoint">/ws &middot; /chat &middot; /sessions &middot; /health &middot; /mcp</p>
</div>
<script>
  const log = document.getElementById("log");
  const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  function add(cls, text) { const p = document.createElement("p"); p.className = cls; p.textContent = text; log.appendChild(p); log.scrollTop = log.scrollHeight; }
  ws.onmessage = (e) => {
    const msg = JSON.parse(e.data);
    if (msg.event === "receive_message") { add("q", msg.data.userquery); add("a", msg.data.answer); }
    if (msg.event === "reset_done") { log.innerHTML = ""; }
  };
  document.getElementById("f").onsubmit = (e) => {
    e.preventDefault();
    const q = document.getElementById("q");
    if (q.value.trim() !== "") { ws.send(JSON.stringify({event: "send_message", data: q.value})); q.value = ""; }
  };
  document.getElementById("reset").onclick = () => ws.send(JSON.stringify({event: "reset"}));
</script>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the chat page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(landingHTML))
	}
}
