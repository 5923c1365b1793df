package httpx

// dashboardHTML is the embedded single-page dashboard. It bootstraps from
// the websocket snapshot and re-renders on each live event.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>observability-kit</title>
<style>
body { font-family: ui-monospace, monospace; margin: 2rem; background: #111; color: #ddd; }
h1 { font-size: 1.2rem; }
section { margin-bottom: 1.5rem; }
table { border-collapse: collapse; width: 100%; }
td, th { padding: 2px 8px; text-align: left; border-bottom: 1px solid #333; }
.err { color: #f66; }
.muted { color: #888; }
</style>
</head>
<body>
<h1>observability-kit</h1>
<section>
  <h2>Requests</h2>
  <div id="summary" class="muted">waiting for data…</div>
</section>
<section>
  <h2>Recent errors</h2>
  <table id="errors"><tbody></tbody></table>
</section>
<script>
const summary = document.getElementById("summary");
const errors = document.querySelector("#errors tbody");
let state = { errors: [] };

function render() {
  if (state.summary) {
    const s = state.summary.requests;
    summary.textContent =
      "total " + s.total + " | " + s.per_minute + "/min | error rate " +
      s.error_rate.toFixed(1) + "% | p50 " + s.latency.p50.toFixed(1) +
      "ms p95 " + s.latency.p95.toFixed(1) + "ms p99 " + s.latency.p99.toFixed(1) + "ms";
  }
  errors.innerHTML = "";
  for (const e of state.errors.slice(0, 20)) {
    const row = errors.insertRow();
    row.insertCell().textContent = e.timestamp;
    row.insertCell().textContent = e.name;
    const msg = row.insertCell();
    msg.textContent = e.message;
    msg.className = "err";
  }
}

const sock = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
sock.onmessage = (raw) => {
  const msg = JSON.parse(raw.data);
  switch (msg.type) {
    case "snapshot":
      state.summary = msg.data.metrics.summary;
      state.errors = msg.data.errors || [];
      break;
    case "error":
      state.errors.unshift(msg.data);
      break;
    case "clear":
      state = { errors: [] };
      break;
    default:
      if (msg.data && msg.data.summary) state.summary = msg.data.summary;
  }
  render();
};
setInterval(() => sock.readyState === WebSocket.OPEN && sock.send('{"type":"ping"}'), 30000);
</script>
</body>
</html>
`
