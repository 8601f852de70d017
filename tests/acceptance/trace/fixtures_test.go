package acceptance_test

import (
	"github.com/valyala/fasthttp"
)

// 1x1 transparent GIF
var pixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0xff, 0xff, 0xff,
	0x00, 0x00, 0x00, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

const pageHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Fixture</title>
  <link rel="stylesheet" href="/style.css">
  <script src="/app.js"></script>
</head>
<body>
  <img src="/logo.gif" alt="logo">
  <img src="/logo.gif" alt="logo again">
  <iframe src="/frame"></iframe>
</body>
</html>`

const frameHTML = `<!DOCTYPE html>
<html><body><img src="/frame.gif"></body></html>`

const refreshHTML = `<!DOCTYPE html>
<html><head><meta http-equiv="refresh" content="0; url=/page"></head><body></body></html>`

func fixtureHandler(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/start":
		ctx.Redirect("/hop", fasthttp.StatusMovedPermanently)
	case "/hop":
		ctx.Redirect("/page", fasthttp.StatusFound)
	case "/refresh":
		ctx.SetContentType("text/html; charset=utf-8")
		ctx.SetBodyString(refreshHTML)
	case "/page":
		ctx.SetContentType("text/html; charset=utf-8")
		ctx.SetBodyString(pageHTML)
	case "/frame":
		ctx.SetContentType("text/html; charset=utf-8")
		ctx.SetBodyString(frameHTML)
	case "/style.css":
		ctx.SetContentType("text/css")
		ctx.SetBodyString(`body { background: url(/bg.gif); }`)
	case "/app.js":
		ctx.SetContentType("application/javascript")
		ctx.Response.Header.Set("Cache-Control", "no-store")
		ctx.SetBodyString(`window.fixtureLoaded = true;`)
	case "/logo.gif", "/bg.gif", "/frame.gif":
		ctx.SetContentType("image/gif")
		ctx.SetBody(pixel)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}
