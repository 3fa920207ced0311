package catalog

import "github.com/cleared-dev/bankimport/internal/model"

// DefaultArticles returns the starter cash-flow articles. IDs are assigned
// when they are stored. Names line up with the built-in keyword taxonomy.
func DefaultArticles() []model.Article {
	a := func(name string, cat model.ArticleCategory) model.Article {
		return model.Article{Name: name, Category: cat, Active: true}
	}
	return []model.Article{
		a("Выручка от реализации", model.ArticleIncome),
		a("Проценты банка", model.ArticleIncome),
		a("Возврат средств", model.ArticleIncome),
		a("Получение займов", model.ArticleIncome),
		a("Прочие поступления", model.ArticleIncome),

		a("Налоги и сборы", model.ArticleExpense),
		a("Заработная плата", model.ArticleExpense),
		a("Аренда", model.ArticleExpense),
		a("Банковские комиссии", model.ArticleExpense),
		a("Связь и интернет", model.ArticleExpense),
		a("Коммунальные услуги", model.ArticleExpense),
		a("Закупка товаров", model.ArticleExpense),
		a("Погашение займов", model.ArticleExpense),
		a("Прочие расходы", model.ArticleExpense),
	}
}
