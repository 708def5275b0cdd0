package iban

import "testing"

func TestFrenchRIBKey(t *testing.T) {
	testCases := []struct {
		name                  string
		bank, branch, account uint64
		want                  uint64
	}{
		{name: "small components", bank: 1, branch: 2, account: 3, want: 66},
		{name: "large account number", bank: 10000, branch: 20000, account: 33333333333, want: 89},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := FrenchRIBKey(tc.bank, tc.branch, tc.account)
			if got != tc.want {
				t.Errorf("FrenchRIBKey(%d, %d, %d) = %d, want %d", tc.bank, tc.branch, tc.account, got, tc.want)
			}
		})
	}
}

func TestStringToNumber(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{in: "20041", want: "20041"},
		{in: "1005", want: "1005"},
		{in: "00013M02600", want: "13402600"},
		{
			in:   "001234567890ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz;=.",
			want: "12345678901234567891234567892345678912345678912345678923456789",
		},
	}

	for _, tc := range testCases {
		if got := StringToNumber(tc.in); got != tc.want {
			t.Errorf("StringToNumber(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFrenchBBAN(t *testing.T) {
	got := FrenchBBAN("20041", "1005", "00013M02600")
	want := "200410100500013M0260005"
	if got != want {
		t.Errorf("FrenchBBAN = %q, want %q", got, want)
	}
}

func TestCalculateIBAN(t *testing.T) {
	got := CalculateIBAN("FR", "200410100500013M0260005")
	want := "FR29200410100500013M0260005"
	if got != want {
		t.Errorf("CalculateIBAN = %q, want %q", got, want)
	}
}

func TestCalculateFrenchIBAN(t *testing.T) {
	got := CalculateFrenchIBAN("20041", "1005", "00013M02600")
	want := "FR29200410100500013M0260005"
	if got != want {
		t.Errorf("CalculateFrenchIBAN = %q, want %q", got, want)
	}
}

func TestExtractFrenchIBAN(t *testing.T) {
	details, err := ExtractFrenchIBAN("FR29200410100500013M0260005")
	if err != nil {
		t.Fatalf("ExtractFrenchIBAN returned error: %v", err)
	}
	if details.BankCode != "20041" {
		t.Errorf("BankCode = %q, want %q", details.BankCode, "20041")
	}
	if details.BranchCode != "01005" {
		t.Errorf("BranchCode = %q, want %q", details.BranchCode, "01005")
	}
	if details.AccountNumber != "00013M02600" {
		t.Errorf("AccountNumber = %q, want %q", details.AccountNumber, "00013M02600")
	}
	if details.RIBKey != "5" {
		t.Errorf("RIBKey = %q, want %q", details.RIBKey, "5")
	}
}

func TestExtractFrenchIBANRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "FR29", "DE29200410100500013M0260005", "FR29200410100500013M0260005X"} {
		if _, err := ExtractFrenchIBAN(in); err == nil {
			t.Errorf("ExtractFrenchIBAN(%q) succeeded, want error", in)
		}
	}
}

func TestLedgerAccountIBANRoundTrip(t *testing.T) {
	iban := CalculateFrenchIBAN("30002", "05728", "EUR00000001")
	details, err := ExtractFrenchIBAN(iban)
	if err != nil {
		t.Fatalf("ExtractFrenchIBAN(%q) returned error: %v", iban, err)
	}
	if details.AccountNumber != "EUR00000001" {
		t.Errorf("AccountNumber = %q, want %q", details.AccountNumber, "EUR00000001")
	}
	if details.BankCode != "30002" || details.BranchCode != "05728" {
		t.Errorf("bank/branch = %q/%q, want 30002/05728", details.BankCode, details.BranchCode)
	}
}
