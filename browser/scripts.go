package browser

// In-page helpers. Every call is prefixed with registryJS so handles survive
// between evaluations; a navigation wipes window.__bb and old handles go stale.

const registryJS = `var R = window.__bb;
if (!R) {
  R = window.__bb = {seq: 0, refs: new Map(), ids: new WeakMap()};
  R.ref = function (el) {
    var id = R.ids.get(el);
    if (!id) { id = 'e' + (++R.seq); R.ids.set(el, id); R.refs.set(id, el); }
    return id;
  };
  R.get = function (id) {
    if (!id) return document;
    var el = R.refs.get(id);
    if (!el || !el.isConnected) throw new Error('stale element handle ' + id);
    return el;
  };
}
`

const findJS = `function (scope, kind, expr) {
  var root = R.get(scope), out = [];
  if (kind === 1) {
    var res = document.evaluate(expr, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    for (var i = 0; i < res.snapshotLength; i++) {
      var n = res.snapshotItem(i);
      if (n.nodeType === 1) out.push(R.ref(n));
    }
  } else {
    root.querySelectorAll(expr).forEach(function (el) { out.push(R.ref(el)); });
  }
  return out;
}`

const deepScanJS = `function (scope, limit) {
  var out = [], stack = [R.get(scope)];
  while (stack.length && out.length < limit) {
    var node = stack.shift();
    var kids = node.children ? Array.prototype.slice.call(node.children) : [];
    if (node.shadowRoot) kids = kids.concat(Array.prototype.slice.call(node.shadowRoot.children));
    for (var i = 0; i < kids.length; i++) { out.push(R.ref(kids[i])); stack.push(kids[i]); }
  }
  return out;
}`

const describeJS = `function (id) {
  var el = R.get(id), r = el.getBoundingClientRect(), cs = getComputedStyle(el), attrs = {};
  for (var i = 0; i < el.attributes.length; i++) attrs[el.attributes[i].name] = el.attributes[i].value;
  if (typeof el.value === 'string') attrs.value = el.value;
  if (typeof el.checked === 'boolean') { if (el.checked) attrs.checked = 'checked'; else delete attrs.checked; }
  return {
    handle: id,
    tag: el.tagName.toLowerCase(),
    text: (el.innerText || el.textContent || '').trim(),
    attrs: attrs,
    rect: {x: r.left, y: r.top, w: r.width, h: r.height},
    style: {color: cs.color, backgroundColor: cs.backgroundColor},
    visible: r.width > 0 && r.height > 0 && cs.visibility !== 'hidden' && cs.display !== 'none',
    enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true'
  };
}`

const parentJS = `function (id, levels) {
  var el = R.get(id);
  for (var i = 0; i < levels && el.parentElement && el !== document.documentElement; i++) el = el.parentElement;
  return R.ref(el);
}`

const clickJS = `function (id) { R.get(id).click(); return true; }`

const focusJS = `function (id) { R.get(id).focus(); return true; }`

const setValueJS = `function (id, v) {
  var el = R.get(id);
  el.focus();
  var proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
  var desc = Object.getOwnPropertyDescriptor(proto, 'value');
  if (desc && desc.set) { desc.set.call(el, v); } else { el.value = v; }
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return String(el.value);
}`

// navigation guard: history mutation is observed, default click behavior is
// cancelled at the document and on the element itself
const guardInstallJS = `function (id) {
  var el = R.get(id);
  var g = window.__bbNav || (window.__bbNav = {});
  if (!g.installed) {
    g.origPush = history.pushState;
    g.origReplace = history.replaceState;
    history.pushState = function () { g.lastIntercept = Date.now(); return g.origPush.apply(this, arguments); };
    history.replaceState = function () { g.lastIntercept = Date.now(); return g.origReplace.apply(this, arguments); };
    g.docClick = function (e) { try { e.preventDefault(); } catch (_) {} };
    document.addEventListener('click', g.docClick, true);
    g.installed = true;
  }
  var stop = function (e) { try { e.preventDefault(); e.stopPropagation(); } catch (_) {} };
  ['mousedown', 'mouseup', 'pointerdown', 'pointerup'].forEach(function (t) {
    el.addEventListener(t, stop, {once: true, capture: true});
  });
  return true;
}`

const guardRemoveJS = `function () {
  var g = window.__bbNav;
  if (g && g.installed) {
    if (g.docClick) document.removeEventListener('click', g.docClick, true);
    if (g.origPush) history.pushState = g.origPush;
    if (g.origReplace) history.replaceState = g.origReplace;
    g.installed = false;
  }
  return true;
}`
