package core

// AccountBalance derives the balance of acc from the full history. Only PAID
// rows count:
//
//	initial + income(BANK/CASH) - expense(BANK/CASH) - card payments
//	        - transfers out + transfers in
func AccountBalance(acc Account, txs []Transaction, transfers []Transfer) Money {
	bal := acc.InitialBalance
	for _, t := range txs {
		if t.Status != StatusPaid || t.AccountID != acc.ID {
			continue
		}
		switch {
		case t.Method.Cash():
			bal = bal.Add(t.Signed())
		case t.Method == MethodCardPayment:
			bal = bal.Sub(t.Amount)
		}
	}
	for _, tr := range transfers {
		if tr.Status != StatusPaid {
			continue
		}
		if tr.FromAccountID == acc.ID {
			bal = bal.Sub(tr.Amount)
		}
		if tr.ToAccountID == acc.ID {
			bal = bal.Add(tr.Amount)
		}
	}
	return bal
}

type AccountBalanceView struct {
	Account Account `json:"account"`
	Balance Money   `json:"balance"`
}

// Balances computes every account's balance, keeping the accounts' order.
func Balances(accounts []Account, txs []Transaction, transfers []Transfer) []AccountBalanceView {
	out := make([]AccountBalanceView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, AccountBalanceView{Account: a, Balance: AccountBalance(a, txs, transfers)})
	}
	return out
}

// TotalBalance adds up the given balances.
func TotalBalance(views []AccountBalanceView) Money {
	var total Money
	for _, v := range views {
		total = total.Add(v.Balance)
	}
	return total
}
