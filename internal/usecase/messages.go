package usecase

import (
	"fmt"
	"strings"

	"insurance-bot/internal/domain"
)

const notSpecified = "Не вказано"

const (
	msgGreeting             = "Привіт! Я бот для створення страховки на ваше авто. Надішліть фото вашого паспорта для розпізнавання даних."
	msgIdentityPhoto        = "Надішліть фото вашого паспорта для розпізнавання даних."
	msgVehiclePhoto1        = "Будь ласка, надішліть фото першої сторінки техпаспорта (де вказаний номер реєстрації):"
	msgVehiclePhoto2        = "Будь ласка, надішліть фото другої сторінки техпаспорта (де вказані марка та VIN):"
	msgIdentityConfirmed    = "✅ Дані паспорта підтверджено!"
	msgIdentitySaved        = "✅ Дані паспорта збережено!"
	msgVehiclePage1Done     = "✅ Перша сторінка оброблена!"
	msgEditIdentity         = "✏ Будь ласка, введіть дані паспорта вручну:"
	msgEditVehicle          = "✏ Будь ласка, введіть дані техпаспорта вручну:"
	msgRecognizingIdentity  = "🔍 Розпізнаю дані з фото..."
	msgRecognizingVehicle1  = "🔍 Обробляю першу сторінку техпаспорта..."
	msgRecognizingVehicle2  = "🔍 Обробляю другу сторінку техпаспорта..."
	msgUploadFailedIdentity = "❌ Не вдалося обробити документ. Спробуйте ще раз."
	msgUploadFailedVehicle  = "❌ Не вдалося обробити техпаспорт. Спробуйте ще раз."
	msgTimedOut             = "⏳ Час очікування вичерпано або виникла помилка."
	msgNotRecognizedID      = "⚠ Не вдалося розпізнати дані з документу."
	msgNotRecognizedVehicle = "⚠ Не вдалося розпізнати дані з техпаспорта."
	msgUnexpectedIdentity   = "❌ Сталася несподівана помилка. Спробуйте ще раз."
	msgUnexpectedVehicle    = "❌ Помилка при обробці техпаспорта. Спробуйте ще раз."
	msgBadIdentityFormat    = "❌ Невірний формат даних. Потрібно ввести рівно 5 рядків з даними паспорта."
	msgBadVehicleFormat     = "❌ Невірний формат даних. Потрібно ввести рівно 4 рядки з даними техпаспорта."
	msgGenerating           = "🔄 Генерую страховий поліс..."
	msgPolicyReady          = "✅ Ваш страховий поліс сформовано:"
	msgPolicyCaption        = "Ваш страховий поліс у форматі TXT"
	msgPolicyFailed         = "❌ Не вдалося сформувати поліс. Спробуйте ще раз."
	msgDeclined             = "Добре, якщо передумаєте, я тут! Просто напишіть /start."
	msgCancelled            = "❌ Операцію скасовано."
	msgRestarting           = "Починаємо з початку..."
	msgSendStart            = "Напишіть /start, щоб почати."
	msgSendPhoto            = "📷 Будь ласка, надішліть фото документа."
	msgSendText             = "📝 Будь ласка, надішліть дані текстом у вказаному форматі."
	msgUseButtons           = "👆 Будь ласка, скористайтеся кнопками нижче."
)

const msgManualIdentity = "📝 Введіть дані паспорта у такому форматі:\n\n" +
	"Прізвище\n" +
	"Ім'я\n" +
	"Номер паспорта\n" +
	"Громадянство\n" +
	"Дата народження (РРРР-ММ-ДД)\n\n" +
	"Приклад:\n" +
	"Іванов\n" +
	"Іван\n" +
	"КМ123456\n" +
	"Україна\n" +
	"1990-05-15"

const msgManualVehicle = "📝 Введіть дані техпаспорта у такому форматі:\n\n" +
	"Номер реєстрації\n" +
	"Дата реєстрації (РРРР-ММ-ДД)\n" +
	"VIN номер\n" +
	"Марка автомобіля\n\n" +
	"Приклад:\n" +
	"АА1234ВВ\n" +
	"2020-01-15\n" +
	"JT2BF22K3W0123456\n" +
	"Toyota Camry"

var (
	btnConfirm = domain.Button{Text: "✅ Так, все вірно", Action: domain.ActionConfirm}
	btnEdit    = domain.Button{Text: "✏ Виправити вручну", Action: domain.ActionEdit}
	btnAgree   = domain.Button{Text: "✅ Так, погоджуюсь", Action: domain.ActionAgree}
	btnDecline = domain.Button{Text: "❌ Відхилити", Action: domain.ActionDecline}
	btnBack    = domain.Button{Text: "↩ Назад", Action: domain.ActionBack}
	btnRestart = domain.Button{Text: "🔄 Почати з початку", Action: domain.ActionRestart}
)

func restartKeyboard() [][]domain.Button {
	return [][]domain.Button{{btnRestart}}
}

func navKeyboard() [][]domain.Button {
	return [][]domain.Button{{btnBack}, {btnRestart}}
}

func confirmKeyboard() [][]domain.Button {
	return [][]domain.Button{{btnConfirm, btnEdit}, {btnBack, btnRestart}}
}

func agreementKeyboard() [][]domain.Button {
	return [][]domain.Button{{btnAgree, btnDecline}, {btnBack, btnRestart}}
}

// orPlaceholder substitutes the display placeholder for an absent value.
func orPlaceholder(v string) string {
	if strings.TrimSpace(v) == "" {
		return notSpecified
	}
	return v
}

func identitySummary(id *domain.IdentityData) string {
	if id == nil {
		id = &domain.IdentityData{}
	}
	return "📋 Виявлені дані:\n" +
		fmt.Sprintf("▪ Прізвище: %s\n", orPlaceholder(id.Surname)) +
		fmt.Sprintf("▪ Ім'я: %s\n", orPlaceholder(id.GivenName)) +
		fmt.Sprintf("▪ Номер паспорта: %s\n", orPlaceholder(id.DocumentNumber)) +
		fmt.Sprintf("▪ Громадянство: %s\n", orPlaceholder(id.Nationality)) +
		fmt.Sprintf("▪ Дата народження: %s\n\n", orPlaceholder(id.BirthDate)) +
		"Ці дані вірні?"
}

func vehicleSummary(v *domain.VehicleData) string {
	if v == nil {
		v = &domain.VehicleData{}
	}
	return "📋 Виявлені дані техпаспорта:\n" +
		fmt.Sprintf("▪ Номер реєстрації: %s\n", orPlaceholder(v.RegistrationNumber)) +
		fmt.Sprintf("▪ Дата реєстрації: %s\n", orPlaceholder(v.RegistrationDate)) +
		fmt.Sprintf("▪ Власник: %s\n", orPlaceholder(v.OwnerName)) +
		fmt.Sprintf("▪ VIN: %s\n", orPlaceholder(v.VehicleIdentificationNumber)) +
		fmt.Sprintf("▪ Марка: %s\n\n", orPlaceholder(v.Make)) +
		"Ці дані вірні?"
}

func agreementText(v *domain.VehicleData) string {
	if v == nil {
		v = &domain.VehicleData{}
	}
	return "📝 Умови страхування:\n\n" +
		"🚗 Дані автомобіля:\n" +
		fmt.Sprintf("- Номер: %s\n", orPlaceholder(v.RegistrationNumber)) +
		fmt.Sprintf("- Марка: %s\n", orPlaceholder(v.Make)) +
		fmt.Sprintf("- VIN: %s\n\n", orPlaceholder(v.VehicleIdentificationNumber)) +
		"💳 Умови страхування:\n" +
		"1. Вартість: 100 USD на рік\n" +
		"2. Термін дії: 1 рік\n" +
		"3. Покриття: базове\n\n" +
		"Ви погоджуєтесь з умовами?"
}

// prompt renders the entry message of stage from the data already held in
// rec. It never calls a collaborator, so re-entering a stage is a pure
// redisplay.
func prompt(rec *domain.ConversationRecord, stage domain.Stage) (string, [][]domain.Button) {
	switch stage {
	case domain.StageAwaitingIdentityPhoto:
		return msgIdentityPhoto, restartKeyboard()
	case domain.StageAwaitingIdentityConfirm:
		return identitySummary(rec.Identity), confirmKeyboard()
	case domain.StageAwaitingManualIdentity:
		return msgManualIdentity, navKeyboard()
	case domain.StageAwaitingVehiclePhoto1:
		return msgVehiclePhoto1, navKeyboard()
	case domain.StageAwaitingVehiclePhoto2:
		return msgVehiclePhoto2, navKeyboard()
	case domain.StageAwaitingManualVehicle:
		return msgManualVehicle, navKeyboard()
	case domain.StageAwaitingVehicleConfirm:
		return vehicleSummary(rec.Vehicle), confirmKeyboard()
	case domain.StageAwaitingAgreement:
		return agreementText(rec.Vehicle), agreementKeyboard()
	default:
		return msgSendStart, restartKeyboard()
	}
}

// hint tells the user which kind of input the stage waits for.
func hint(stage domain.Stage) string {
	switch stage {
	case domain.StageAwaitingIdentityPhoto, domain.StageAwaitingVehiclePhoto1, domain.StageAwaitingVehiclePhoto2:
		return msgSendPhoto
	case domain.StageAwaitingManualIdentity, domain.StageAwaitingManualVehicle:
		return msgSendText
	case domain.StageAwaitingIdentityConfirm, domain.StageAwaitingVehicleConfirm, domain.StageAwaitingAgreement:
		return msgUseButtons
	default:
		return msgSendStart
	}
}

// backTarget is the stage the back button returns to.
func backTarget(rec *domain.ConversationRecord) domain.Stage {
	switch rec.Stage {
	case domain.StageAwaitingManualIdentity, domain.StageAwaitingIdentityConfirm:
		return domain.StageAwaitingIdentityPhoto
	case domain.StageAwaitingVehiclePhoto1:
		if rec.Identity == nil {
			return domain.StageAwaitingIdentityPhoto
		}
		return domain.StageAwaitingIdentityConfirm
	case domain.StageAwaitingVehiclePhoto2, domain.StageAwaitingManualVehicle:
		return domain.StageAwaitingVehiclePhoto1
	case domain.StageAwaitingVehicleConfirm:
		return domain.StageAwaitingVehiclePhoto2
	case domain.StageAwaitingAgreement:
		return domain.StageAwaitingVehicleConfirm
	}
	return rec.Stage
}
