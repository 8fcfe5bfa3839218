package h5viewer

import "net/http"

func viewerPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(viewerPageHTML))
}

func faviconHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// viewerPageHTML is the single-page viewer: a toolbar with "Open File", the
// structure tree on the left, and Data / Attributes panels on the right.
const viewerPageHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>HDF5 Viewer</title>
  <style>
    * { box-sizing: border-box; }
    body { margin: 0; font: 13px/1.4 "Helvetica Neue", Helvetica, Arial, sans-serif; color: #333; }
    #window { display: flex; flex-direction: column; width: 800px; height: 600px; border: 1px solid #aab; }
    #tbar { padding: 4px; background: #eef; border-bottom: 1px solid #ccd; }
    #main { flex: 1; display: flex; min-height: 0; }
    #west { width: 300px; border-right: 1px solid #ccd; overflow: auto; }
    #center { flex: 1; overflow: auto; }
    .title { background: #dde; padding: 3px 6px; font-weight: 600; }
    ul.tree { list-style: none; margin: 0; padding-left: 14px; }
    .node { cursor: pointer; padding: 1px 3px; }
    .node.dataset:hover { background: #ddf; }
    .node.selected { background: #bcf; }
    .panel { margin: 0 0 8px 0; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ddd; padding: 2px 6px; text-align: left; font-family: monospace; }
    th { background: #f0f0f0; font-family: inherit; }
    .error { color: #a94442; padding: 6px; }
    #picker { display: none; position: absolute; top: 40px; left: 40px; width: 420px; height: 360px;
              background: #fff; border: 1px solid #889; box-shadow: 0 2px 8px rgba(0,0,0,.3); flex-direction: column; }
    #picker .list { flex: 1; overflow: auto; }
    #picker .entry { cursor: pointer; padding: 2px 6px; }
    #picker .entry:hover { background: #ddf; }
  </style>
</head>
<body>
<div id="window">
  <div id="tbar"><button id="open">Open File</button></div>
  <div id="main">
    <div id="west"><div class="title">HDF5 Structure</div><div id="tree"></div></div>
    <div id="center"><div id="contentPanel"></div></div>
  </div>
</div>
<div id="picker">
  <div class="title">Open File <span id="pickerDir"></span></div>
  <div class="list" id="pickerList"></div>
  <div style="padding:4px;text-align:right"><button id="pickerCancel">Cancel</button></div>
</div>
<script>
(function () {
  var currentFile = null;

  function api(name, params) {
    var q = new URLSearchParams(params).toString();
    return fetch("api/" + name + "?" + q).then(function (resp) {
      return resp.text().then(function (text) {
        var body = null;
        try { body = JSON.parse(text); } catch (e) {}
        return { ok: resp.ok, status: resp.statusText, body: body };
      });
    });
  }

  function el(tag, cls, text) {
    var e = document.createElement(tag);
    if (cls) { e.className = cls; }
    if (text !== undefined) { e.textContent = text; }
    return e;
  }

  function setRoot(data) {
    var tree = document.getElementById("tree");
    tree.innerHTML = "";
    var ul = el("ul", "tree");
    ul.appendChild(renderNode(data));
    tree.appendChild(ul);
  }

  function renderNode(node) {
    var li = el("li");
    var label = node.type === "dataset"
      ? node.name + "  [" + (node.shape || []).join(" x ") + "] " + (node.dtype || "")
      : node.name;
    var span = el("span", "node " + node.type, label);
    span.addEventListener("click", function () { onItemClick(node, span); });
    li.appendChild(span);
    if (node.children && node.children.length) {
      var ul = el("ul", "tree");
      node.children.forEach(function (c) { ul.appendChild(renderNode(c)); });
      li.appendChild(ul);
    }
    return li;
  }

  function grid(rows) {
    var table = el("table");
    var head = el("tr");
    head.appendChild(el("th", null, "Value"));
    table.appendChild(head);
    rows.forEach(function (v) {
      var tr = el("tr");
      tr.appendChild(el("td", null, typeof v === "object" ? JSON.stringify(v) : String(v)));
      table.appendChild(tr);
    });
    return table;
  }

  function propertyGrid(source) {
    var table = el("table");
    var head = el("tr");
    head.appendChild(el("th", null, "Name"));
    head.appendChild(el("th", null, "Value"));
    table.appendChild(head);
    Object.keys(source).sort().forEach(function (k) {
      var tr = el("tr");
      tr.appendChild(el("td", null, k));
      var v = source[k];
      tr.appendChild(el("td", null, typeof v === "object" ? JSON.stringify(v) : String(v)));
      table.appendChild(tr);
    });
    return table;
  }

  function onItemClick(node, span) {
    if (node.type !== "dataset") { return; }
    document.querySelectorAll(".node.selected").forEach(function (s) { s.classList.remove("selected"); });
    span.classList.add("selected");
    var content = document.getElementById("contentPanel");
    content.innerHTML = "";
    var dataSlot = el("div"), attrSlot = el("div");
    content.appendChild(dataSlot);
    content.appendChild(attrSlot);

    api("get_dataset", { file: currentFile, path: node.path }).then(function (r) {
      var result = r.body;
      if (!result) { return; }
      var panel = el("div", "panel");
      panel.appendChild(el("div", "title", "Data"));
      if (result.error) {
        panel.appendChild(el("div", "error", "Error: " + result.error));
      } else {
        var rows = Array.isArray(result.data) ? result.data : [result.data];
        panel.appendChild(grid(rows));
      }
      dataSlot.appendChild(panel);
    }).catch(function () {});

    api("get_attributes", { file: currentFile, path: node.path }).then(function (r) {
      if (!r.ok || !r.body || typeof r.body !== "object") { return; }
      var panel = el("div", "panel");
      panel.appendChild(el("div", "title", "Attributes"));
      panel.appendChild(propertyGrid(r.body));
      attrSlot.appendChild(panel);
    }).catch(function () {});
  }

  function onFileSelected(file) {
    if (!file) { return; }
    currentFile = file.path;
    api("get_structure", { file: file.path }).then(function (r) {
      if (!r.ok || !r.body) {
        alert("Failed to load file: " + r.status);
        return;
      }
      setRoot(r.body);
    }).catch(function (err) {
      alert("Failed to load file: " + err.message);
    });
  }

  function showDir(dir) {
    api("list_dir", dir ? { dir: dir } : {}).then(function (r) {
      if (!r.ok || !r.body) { alert("Error: " + (r.body && r.body.error ? r.body.error : r.status)); return; }
      var listing = r.body;
      document.getElementById("pickerDir").textContent = listing.dir;
      var list = document.getElementById("pickerList");
      list.innerHTML = "";
      if (listing.parent) {
        var up = el("div", "entry", "..");
        up.addEventListener("click", function () { showDir(listing.parent); });
        list.appendChild(up);
      }
      listing.entries.forEach(function (e) {
        var row = el("div", "entry", e.is_dir ? e.name + "/" : e.name);
        row.addEventListener("click", function () {
          if (e.is_dir) { showDir(e.path); return; }
          document.getElementById("picker").style.display = "none";
          onFileSelected(e);
        });
        list.appendChild(row);
      });
    });
  }

  function openFile() {
    document.getElementById("picker").style.display = "flex";
    showDir("");
  }

  document.getElementById("open").addEventListener("click", openFile);
  document.getElementById("pickerCancel").addEventListener("click", function () {
    document.getElementById("picker").style.display = "none";
  });
  setRoot({ name: "No file loaded", type: "group", children: [] });
})();
</script>
</body>
</html>
`
