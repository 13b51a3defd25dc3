package capability

import (
	"context"

	"agentic-browser/internal/automation"
	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/evidence"
	"agentic-browser/internal/pipeline"
)

var errNoBrowser = xerrors.New(xerrors.CodeConfiguration, "controle de automação não configurado")

// act 执行一次浏览器动作并写入证据；fill 的值在证据和结果中都被遮蔽。
func act(ctx context.Context, browser automation.Controller, ev *evidence.Pack, step pipeline.Step) pipeline.ActionResult {
	kind := evidenceKind(step.Kind)
	detail := map[string]any{}
	out := pipeline.ActionResult{Kind: kind}

	var (
		res automation.Result
		err error
	)
	switch step.Kind {
	case "open":
		detail["url"] = step.URL
		out.Target = step.URL
		if browser == nil {
			err = errNoBrowser
			break
		}
		res, err = browser.OpenTab(ctx, step.URL)
	case "click":
		detail["selector"] = step.Selector
		out.Target = step.Selector
		if browser == nil {
			err = errNoBrowser
			break
		}
		res, err = browser.Click(ctx, step.Selector)
	case "fill":
		detail["selector"] = step.Selector
		detail["value"] = evidence.Mask
		out.Target = step.Selector
		if browser == nil {
			err = errNoBrowser
			break
		}
		res, err = browser.Fill(ctx, step.Selector, step.Value)
	}

	if err != nil {
		detail["error"] = err.Error()
		out.Error = err.Error()
	} else {
		out.OK = automation.Truthy(res)
		if step.Kind == "fill" {
			// 远端可能回显取值，fill 只保留成功标记。
			detail["result"] = out.OK
		} else {
			detail["result"] = automation.Decode(res)
			out.Result = res
		}
	}
	ev.Log(kind, detail)
	return out
}

// blockedDomain 与审查阶段的告警文本一致，同一地址只会记录一次。
func blockedDomain(url string) string {
	return "Domínio não autorizado: " + url
}

func evidenceKind(stepKind string) string {
	if stepKind == "open" {
		return "open_tab"
	}
	return stepKind
}
