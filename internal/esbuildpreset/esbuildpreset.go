// Package esbuildpreset is the default Preset implementation,
// transpiling every source stage through github.com/evanw/esbuild's
// api.Transform.
package esbuildpreset

import (
	"fmt"
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/sandboxkit/corebundle/internal/preset"
	"github.com/sandboxkit/corebundle/internal/sberrors"
)

// extLoaders maps file extensions to the esbuild loader that should
// handle them.
var extLoaders = map[string]api.Loader{
	".js":         api.LoaderJS,
	".jsx":        api.LoaderJSX,
	".ts":         api.LoaderTS,
	".tsx":        api.LoaderTSX,
	".json":       api.LoaderJSON,
	".css":        api.LoaderCSS,
	".module.css": api.LoaderLocalCSS,
	".mjs":        api.LoaderJS,
	".cjs":        api.LoaderJS,
	".md":         api.LoaderText,
	".woff":       api.LoaderFile,
	".woff2":      api.LoaderFile,
	".ttf":        api.LoaderFile,
	".eot":        api.LoaderFile,
	".svg":        api.LoaderFile,
	".png":        api.LoaderFile,
	".jpg":        api.LoaderFile,
	".gif":        api.LoaderFile,
}

func loaderForFile(p string) api.Loader {
	if strings.HasSuffix(p, ".module.css") {
		return api.LoaderLocalCSS
	}
	ext := path.Ext(p)
	if l, ok := extLoaders[ext]; ok {
		return l
	}
	return api.LoaderJS
}

// Options configures a Preset instance.
type Options struct {
	Aliases     map[string]string
	SandboxRoot string
	// Defines feeds esbuild's Define map (e.g. process.env.NODE_ENV).
	Defines map[string]string
	// TsconfigRaw, when set, is passed through to every Transform call
	// so JSX settings honor the sandbox's tsconfig.json.
	TsconfigRaw string
	DotEnv      bool
}

// Preset implements preset.Preset backed by esbuild.
type Preset struct {
	preset.BasePreset
	transform     *Transpiler
	cssTranspiler *CSSTranspiler
}

// New builds the default esbuild-backed Preset.
func New(opts Options) *Preset {
	p := &Preset{}
	p.Aliases = opts.Aliases
	p.SandboxRoot = opts.SandboxRoot
	p.IgnoredExts = []string{".map", ".d.ts"}
	p.DotEnv = opts.DotEnv

	p.transform = &Transpiler{defines: opts.Defines, tsconfigRaw: opts.TsconfigRaw}
	p.cssTranspiler = &CSSTranspiler{}

	p.Named = map[string]preset.Transpiler{
		p.transform.Name():     p.transform,
		p.cssTranspiler.Name(): p.cssTranspiler,
	}
	return p
}

// GetLoaders returns the ordered transpiler chain for path/query. CSS
// files get the CSS transpiler; everything else (js/jsx/ts/tsx/json
// and raw asset types) goes through esbuild's api.Transform, which
// esbuild itself dispatches per-extension via Loader.
func (p *Preset) GetLoaders(modPath, query string) []preset.Transpiler {
	ext := path.Ext(modPath)
	if ext == ".css" || strings.HasSuffix(modPath, ".module.css") {
		return []preset.Transpiler{p.cssTranspiler}
	}
	return []preset.Transpiler{p.transform}
}

// Transpiler runs github.com/evanw/esbuild's api.Transform over a
// module's code as a standalone transpiler stage.
type Transpiler struct {
	defines     map[string]string
	tsconfigRaw string
	managerCtx  interface{}
}

func (t *Transpiler) Name() string { return "esbuild-transform" }

func (t *Transpiler) SetManagerContext(ctx interface{}) { t.managerCtx = ctx }

func (t *Transpiler) Transpile(code string, ctx preset.LoaderContext) (preset.TranspileResult, error) {
	opts := api.TransformOptions{
		Loader:         loaderForFile(ctx.Path),
		Format:         api.FormatCommonJS,
		Target:         api.ESNext,
		JSX:            api.JSXAutomatic,
		Sourcemap:      api.SourceMapInline,
		SourcesContent: api.SourcesContentInclude,
		Sourcefile:     ctx.Path,
		Define:         t.defines,
		LogLevel:       api.LogLevelSilent,
	}
	if t.tsconfigRaw != "" {
		opts.TsconfigRaw = t.tsconfigRaw
	}

	result := api.Transform(code, opts)
	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		span := ""
		if msg.Location != nil {
			span = fmt.Sprintf("%s:%d:%d", msg.Location.File, msg.Location.Line, msg.Location.Column)
		}
		return preset.TranspileResult{}, &sberrors.TranspileError{
			Path:       ctx.Path,
			Query:      ctx.Query,
			Stage:      t.Name(),
			SourceSpan: span,
			Err:        fmt.Errorf("%s", msg.Text),
		}
	}

	return preset.TranspileResult{
		Code:      string(result.Code),
		SourceMap: string(result.Map),
	}, nil
}

// CSSTranspiler transforms a .css/.module.css Module via esbuild's CSS
// loader and emits a JS module that injects the compiled CSS into the
// document.
type CSSTranspiler struct{}

func (t *CSSTranspiler) Name() string { return "css-module" }

func (t *CSSTranspiler) Transpile(code string, ctx preset.LoaderContext) (preset.TranspileResult, error) {
	loader := api.LoaderCSS
	if strings.HasSuffix(ctx.Path, ".module.css") {
		loader = api.LoaderLocalCSS
	}
	result := api.Transform(code, api.TransformOptions{
		Loader:     loader,
		Sourcefile: ctx.Path,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return preset.TranspileResult{}, &sberrors.TranspileError{
			Path:  ctx.Path,
			Query: ctx.Query,
			Stage: t.Name(),
			Err:   fmt.Errorf("%s", result.Errors[0].Text),
		}
	}

	css := string(result.Code)
	js := fmt.Sprintf(cssModuleTemplate, toJSStringLiteral(css))
	return preset.TranspileResult{Code: js}, nil
}

// cssModuleTemplate is a JS module whose side effect is injecting a
// <style> tag into the page.
const cssModuleTemplate = `
var __css = %s;
var __styleEl = document.createElement('style');
__styleEl.textContent = __css;
document.head.appendChild(__styleEl);
module.exports = {};
`

func toJSStringLiteral(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "`", "\\`")
	escaped = strings.ReplaceAll(escaped, "${", "\\${")
	return "`" + escaped + "`"
}
