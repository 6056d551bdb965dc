package services

import "inverapp/internal/models"

// Допустимые переходы статуса flow. Задачи переходят между статусами свободно.
var FlowTransitions = map[string]map[string]bool{
	string(models.FlowPending):    {string(models.FlowInProgress): true},
	string(models.FlowInProgress): {string(models.FlowCompleted): true},
	string(models.FlowCompleted):  {}, // финал
}

func canTransition(current, to string, table map[string]map[string]bool) bool {
	if current == "" {
		// если в БД пусто: считаем flow ещё не запущенным
		current = string(models.FlowPending)
	}
	nexts, ok := table[current]
	if !ok {
		return false
	}
	return nexts[to]
}
