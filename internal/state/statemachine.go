package state

import "fmt"

// State 抽奖回合状态
const (
	StateOpen     = "open"                // 开放报名(可enter)
	StateAwaiting = "awaiting_randomness" // 已发起随机数请求，等待预言机履约
	StateComplete = "complete"            // 已选出赢家
)

// Event 回合事件
const (
	EvtEnter            = "enter"
	EvtRequestSelection = "request_selection"
	EvtFinalize         = "finalize"
	EvtReset            = "reset"
)

// NextState 根据当前状态与事件计算下一个状态，非法转换报错
// 注意：awaiting_randomness 阶段仍允许 enter（产品决策，不做静默收紧）；
// request_selection 重复调用会覆盖在途请求ID，状态保持 awaiting_randomness。
func NextState(cur, evt string) (string, error) {
	switch cur {
	case StateOpen:
		switch evt {
		case EvtEnter:
			return StateOpen, nil
		case EvtRequestSelection:
			return StateAwaiting, nil
		}
	case StateAwaiting:
		switch evt {
		case EvtEnter:
			return StateAwaiting, nil
		case EvtRequestSelection:
			return StateAwaiting, nil
		case EvtFinalize:
			return StateComplete, nil
		}
	case StateComplete:
		if evt == EvtReset {
			return StateOpen, nil
		}
	}
	return cur, fmt.Errorf("invalid transition: %s --%s--> ?", cur, evt)
}
