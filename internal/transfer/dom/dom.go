//go:build js && wasm

// Package dom binds the transfer controller to the admin transfer page in the browser.
package dom

import (
	"context"
	"fmt"
	"syscall/js"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/transfer"
)

// Region is a feedback element toggled through its hidden attribute.
type Region struct {
	el js.Value
}

func (r Region) Show() { r.el.Set("hidden", false) }

func (r Region) Hide() { r.el.Set("hidden", true) }

func (r Region) SetText(text string) { r.el.Set("textContent", text) }

func (r Region) SetHTML(markup string) { r.el.Set("innerHTML", markup) }

// Trigger is a button.
type Trigger struct {
	el js.Value
}

func (t Trigger) SetDisabled(disabled bool) { t.el.Set("disabled", disabled) }

// Form is a <form> element.
type Form struct {
	el js.Value
}

// Snapshot reads every named, enabled control of the form the way the browser would
// submit it. It waits on file reads and must not run on the event loop.
func (f Form) Snapshot() (transfer.FormData, error) {
	var data transfer.FormData

	elements := f.el.Get("elements")
	for i := 0; i < elements.Length(); i++ {
		el := elements.Index(i)
		name := el.Get("name").String()
		if name == "" || el.Get("disabled").Truthy() {
			continue
		}

		switch el.Get("type").String() {
		case "submit", "button", "reset", "image":
			continue
		case "checkbox", "radio":
			if !el.Get("checked").Truthy() {
				continue
			}
			data.Values = append(data.Values, transfer.FormValue{Name: name, Value: el.Get("value").String()})
		case "file":
			files := el.Get("files")
			for j := 0; j < files.Length(); j++ {
				file := files.Index(j)
				content, err := readFile(file)
				if err != nil {
					return transfer.FormData{}, err
				}
				data.Files = append(data.Files, transfer.FormFile{
					Field:       name,
					Filename:    file.Get("name").String(),
					ContentType: file.Get("type").String(),
					Content:     content,
				})
			}
		default:
			data.Values = append(data.Values, transfer.FormValue{Name: name, Value: el.Get("value").String()})
		}
	}

	return data, nil
}

func (f Form) Reset() { f.el.Call("reset") }

type readResult struct {
	content []byte
	err     error
}

func readFile(file js.Value) ([]byte, error) {
	done := make(chan readResult, 1)

	onLoad := js.FuncOf(func(this js.Value, args []js.Value) any {
		buf := js.Global().Get("Uint8Array").New(args[0])
		content := make([]byte, buf.Get("length").Int())
		js.CopyBytesToGo(content, buf)
		done <- readResult{content: content}
		return nil
	})
	defer onLoad.Release()

	onError := js.FuncOf(func(this js.Value, args []js.Value) any {
		done <- readResult{err: fmt.Errorf("failed to read %s: %s", file.Get("name").String(), args[0].Call("toString").String())}
		return nil
	})
	defer onError.Release()

	file.Call("arrayBuffer").Call("then", onLoad).Call("catch", onError)

	res := <-done
	return res.content, res.err
}

// Page holds the elements of the transfer page.
type Page struct {
	Button     js.Value
	Form       js.Value
	FilePicker js.Value
	Success    js.Value
	Error      js.Value
}

// Lookup finds the transfer page elements in document.
func Lookup(document js.Value) (Page, error) {
	byID := func(id string) (js.Value, error) {
		el := document.Call("getElementById", id)
		if el.IsNull() || el.IsUndefined() {
			return js.Value{}, fmt.Errorf("element #%s not found", id)
		}
		return el, nil
	}

	var (
		p   Page
		err error
	)
	if p.Button, err = byID(transfer.ImportButtonID); err != nil {
		return Page{}, err
	}
	if p.Form, err = byID(transfer.ImportFormID); err != nil {
		return Page{}, err
	}
	if p.FilePicker, err = byID(transfer.FilePickerID); err != nil {
		return Page{}, err
	}
	if p.Success, err = byID(transfer.SuccessAlertID); err != nil {
		return Page{}, err
	}
	if p.Error, err = byID(transfer.ErrorAlertID); err != nil {
		return Page{}, err
	}
	return p, nil
}

// ContentMode reads the form's data-error-mode attribute.
func (p Page) ContentMode() transfer.ContentMode {
	attr := p.Form.Call("getAttribute", "data-error-mode")
	if attr.IsNull() {
		return transfer.PlainText
	}
	mode, _ := transfer.ParseContentMode(attr.String())
	return mode
}

// Bind attaches a controller to the page's button and file picker. The returned
// function detaches it.
func Bind(p Page, baseURL string, opts ...transfer.Option) (*transfer.Controller, func()) {
	ctrl := transfer.NewController(baseURL,
		Form{el: p.Form},
		Trigger{el: p.Button},
		Region{el: p.Success},
		Region{el: p.Error},
		opts...,
	)

	onClick := js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) > 0 {
			args[0].Call("preventDefault")
		}
		// Reading files and fetching need the event loop, so leave it first.
		go ctrl.OnImportClick(context.Background())
		return nil
	})
	onPick := js.FuncOf(func(this js.Value, args []js.Value) any {
		ctrl.OnFileFieldInteraction()
		return nil
	})

	p.Button.Call("addEventListener", "click", onClick)
	p.FilePicker.Call("addEventListener", "click", onPick)

	release := func() {
		p.Button.Call("removeEventListener", "click", onClick)
		p.FilePicker.Call("removeEventListener", "click", onPick)
		onClick.Release()
		onPick.Release()
	}
	return ctrl, release
}
